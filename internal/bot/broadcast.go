package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func claimKeyboard(prizeID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(claimButtonText, strconv.FormatInt(prizeID, 10)),
		),
	)
}

// SendHiddenPrize sends the hidden rendition with a claim button to one participant.
func (b *Bot) SendHiddenPrize(ctx context.Context, recipientID int64, hiddenPath string, prizeID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(recipientID, tgbotapi.FilePath(hiddenPath))
	photo.Caption = hiddenPrizeCaption
	photo.ReplyMarkup = claimKeyboard(prizeID)
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("send hidden prize %d to %d: %w", prizeID, recipientID, err)
	}
	return nil
}
