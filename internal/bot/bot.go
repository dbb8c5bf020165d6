/**
 * @description
 * Telegram transport for the prize game. It registers players, serves the leaderboard
 * and collections, turns "Get it!" button presses into claims and lets admins upload
 * prizes or start a round by hand.
 *
 * @dependencies
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Bot API client.
 */
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/prizedrop/prize-service/internal/app"
	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
)

// Telegram refuses bot downloads above 20 MB.
const maxDownloadBytes = 20 << 20

// botAPI is the part of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Participants interface {
	Register(ctx context.Context, id int64, displayName string) (bool, error)
}

type Leaderboard interface {
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

type Prizes interface {
	Upload(ctx context.Context, name string, r io.Reader) (*domain.Prize, error)
	Collection(ctx context.Context, participantID int64) ([]byte, error)
	OriginalPath(assetRef string) (string, error)
}

type RoundStarter interface {
	StartRound(ctx context.Context) (app.RoundReport, error)
}

// Dependencies bundles the services the bot calls into.
type Dependencies struct {
	Claims          app.Claimer
	Participants    Participants
	Leaderboard     Leaderboard
	Prizes          Prizes
	Rounds          RoundStarter
	IsAdmin         func(userID int64) bool
	LeaderboardSize int
}

type Bot struct {
	api        botAPI
	deps       Dependencies
	httpClient *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func New(api botAPI, deps Dependencies, logger *slog.Logger) *Bot {
	if deps.IsAdmin == nil {
		deps.IsAdmin = func(int64) bool { return false }
	}
	if deps.LeaderboardSize <= 0 {
		deps.LeaderboardSize = 10
	}
	return &Bot{
		api:        api,
		deps:       deps,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Run handles updates until ctx is done or the channel closes, then waits for
// in-flight handlers. Updates are handled concurrently so claims race fairly.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("telegram update handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	if len(msg.Photo) > 0 || msg.Document != nil {
		if strings.HasPrefix(strings.TrimSpace(msg.Caption), "/upload") {
			b.handleUpload(ctx, msg)
		}
		return
	}
	if !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "rating":
		b.handleRating(ctx, msg)
	case "collection":
		b.handleCollection(ctx, msg)
	case "round":
		b.handleRound(ctx, msg)
	case "upload":
		b.reply(msg, msgUploadHint)
	default:
		b.reply(msg, msgUnknownCommand)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	created, err := b.deps.Participants.Register(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		b.logger.Error("failed to register participant", "participant_id", msg.From.ID, "error", err)
		b.reply(msg, msgRegisterFailed)
		return
	}
	if !created {
		b.reply(msg, msgAlreadyRegistered)
		return
	}
	b.reply(msg, msgWelcome)
}

func (b *Bot) handleRating(ctx context.Context, msg *tgbotapi.Message) {
	entries, err := b.deps.Leaderboard.Top(ctx, b.deps.LeaderboardSize)
	if err != nil {
		b.logger.Error("failed to load leaderboard", "error", err)
		b.reply(msg, msgLeaderboardFailed)
		return
	}
	if len(entries) == 0 {
		b.reply(msg, msgLeaderboardEmpty)
		return
	}
	b.reply(msg, formatLeaderboard(entries))
}

func formatLeaderboard(entries []domain.LeaderboardEntry) string {
	var sb strings.Builder
	sb.WriteString("🏆 Leaderboard 🏆\n\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d. %s: %d\n", e.Rank, e.DisplayName, e.Points)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) handleCollection(ctx context.Context, msg *tgbotapi.Message) {
	data, err := b.deps.Prizes.Collection(ctx, msg.From.ID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrParticipantNotFound):
			b.reply(msg, msgNotRegistered)
		case errors.Is(err, app.ErrEmptyCollection):
			b.reply(msg, msgCollectionEmpty)
		default:
			b.logger.Error("failed to render collection", "participant_id", msg.From.ID, "error", err)
			b.reply(msg, msgCollectionFailed)
		}
		return
	}

	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: "collection.png", Bytes: data})
	photo.Caption = collectionCaption
	if _, err := b.api.Send(photo); err != nil {
		b.logger.Warn("failed to send collection", "participant_id", msg.From.ID, "error", err)
	}
}

func (b *Bot) handleRound(ctx context.Context, msg *tgbotapi.Message) {
	if !b.deps.IsAdmin(msg.From.ID) {
		b.reply(msg, msgAdminOnly)
		return
	}
	report, err := b.deps.Rounds.StartRound(ctx)
	if err != nil {
		b.logger.Warn("manual round failed", "admin_id", msg.From.ID, "error", err)
		b.reply(msg, fmt.Sprintf(msgRoundFailed, err))
		return
	}
	if report.Skipped {
		b.reply(msg, msgRoundSkipped)
		return
	}
	b.reply(msg, fmt.Sprintf(msgRoundStarted, report.Round, report.PrizeID, report.Delivered, report.Failed))
}

func (b *Bot) handleUpload(ctx context.Context, msg *tgbotapi.Message) {
	if !b.deps.IsAdmin(msg.From.ID) {
		b.reply(msg, msgAdminOnly)
		return
	}

	var fileID, name string
	if msg.Document != nil {
		fileID, name = msg.Document.FileID, msg.Document.FileName
	} else {
		// Photo sizes are ordered smallest first.
		largest := msg.Photo[len(msg.Photo)-1]
		fileID, name = largest.FileID, fmt.Sprintf("prize-%d-%d.jpg", msg.Chat.ID, msg.MessageID)
	}

	prize, err := b.uploadFile(ctx, fileID, name)
	if err != nil {
		b.logger.Warn("admin upload failed", "admin_id", msg.From.ID, "file_name", name, "error", err)
		b.reply(msg, fmt.Sprintf(msgUploadFailed, err))
		return
	}
	b.reply(msg, fmt.Sprintf(msgUploaded, prize.ID, prize.AssetRef))
}

func (b *Bot) uploadFile(ctx context.Context, fileID, name string) (*domain.Prize, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return b.deps.Prizes.Upload(ctx, name, io.LimitReader(resp.Body, maxDownloadBytes))
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	prizeID, err := strconv.ParseInt(strings.TrimSpace(cq.Data), 10, 64)
	if err != nil || prizeID <= 0 {
		b.answer(cq, answerUnavailable)
		return
	}

	outcome, err := b.deps.Claims.Claim(ctx, prizeID, cq.From.ID)
	if err != nil {
		b.logger.Error("claim failed", "prize_id", prizeID, "participant_id", cq.From.ID, "error", err)
	}

	switch outcome.Status {
	case domain.ClaimStatusWon:
		b.deliverPrize(cq, outcome)
	case domain.ClaimStatusExhausted:
		b.answer(cq, answerExhausted)
	case domain.ClaimStatusAlreadyClaimed:
		b.answer(cq, answerAlreadyClaimed)
	case domain.ClaimStatusNotFound:
		b.answer(cq, answerNotFound)
	case domain.ClaimStatusNotRegistered:
		b.answer(cq, answerNotRegistered)
	case domain.ClaimStatusRateLimited:
		b.answer(cq, fmt.Sprintf(answerRateLimited, outcome.RetryAfterSeconds))
	default:
		b.answer(cq, answerUnavailable)
	}
}

// deliverPrize sends the unhidden image to the winner. The win stands even when the
// image cannot be delivered.
func (b *Bot) deliverPrize(cq *tgbotapi.CallbackQuery, outcome domain.ClaimOutcome) {
	path, err := b.deps.Prizes.OriginalPath(outcome.AssetRef)
	if err != nil {
		b.logger.Error("won prize image missing", "prize_id", outcome.PrizeID, "asset_ref", outcome.AssetRef, "error", err)
		b.answer(cq, answerImageMissing)
		return
	}
	if _, err := b.api.Send(tgbotapi.NewPhoto(cq.From.ID, tgbotapi.FilePath(path))); err != nil {
		b.logger.Warn("failed to send won prize", "prize_id", outcome.PrizeID, "participant_id", cq.From.ID, "error", err)
	}
	b.answer(cq, answerWon)
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Warn("failed to send telegram reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) answer(cq *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		b.logger.Warn("failed to answer callback", "callback_id", cq.ID, "error", err)
	}
}
