package bot

const (
	msgWelcome = "👋 Welcome! You've been registered successfully!\n\n" +
		"🕒 Every hour, you'll receive hidden images.\n" +
		"🏃 Be the first 3 to click 'Get it!' to unlock them!\n\n" +
		"/rating - Check the leaderboard\n" +
		"/collection - See the prizes you have unlocked"
	msgAlreadyRegistered = "ℹ️ You are already registered!"
	msgRegisterFailed    = "⚠️ Registration is unavailable right now. Try again later."
	msgLeaderboardEmpty  = "📭 The leaderboard is empty."
	msgLeaderboardFailed = "⚠️ The leaderboard is unavailable right now."
	msgCollectionEmpty   = "📭 You have not unlocked any prizes yet."
	msgCollectionFailed  = "⚠️ Could not build your collection right now."
	msgNotRegistered     = "Send /start to join the game first."
	msgUnknownCommand    = "Unknown command. Try /start, /rating or /collection."
	msgAdminOnly         = "⛔ This command is for admins only."
	msgUploadHint        = "Send a photo or an image file with the caption /upload."
	msgUploadFailed      = "⚠️ Upload failed: %v"
	msgUploaded          = "✅ Prize #%d added (%s)."
	msgRoundSkipped      = "ℹ️ No eligible prize; round skipped."
	msgRoundStarted      = "✅ Round %d of prize #%d sent to %d participants (%d failed)."
	msgRoundFailed       = "⚠️ Round failed: %v"

	hiddenPrizeCaption = "🔍 New hidden image available!"
	claimButtonText    = "Get it!"
	collectionCaption  = "🖼 Your collection"

	answerWon            = "🎉 Congratulations! You got the prize!"
	answerExhausted      = "❌ Prize already claimed by 3 users!"
	answerAlreadyClaimed = "ℹ️ You already have this prize!"
	answerNotFound       = "❌ This prize does not exist."
	answerNotRegistered  = "Send /start to join the game first."
	answerRateLimited    = "⏳ Too many attempts. Try again in %ds."
	answerUnavailable    = "❌ Failed to claim. Try again!"
	answerImageMissing   = "⚠️ Error: Image not found."
)
