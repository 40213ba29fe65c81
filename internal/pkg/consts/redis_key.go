package consts

const (
	IMConversationKey = "im:conversation:"
	IMUserKey         = "im:user:"
	IMBroadcastKey    = "im:broadcast"
	TokenBlacklistKey = "token:blacklist:"
	LinkPreviewKey    = "im:link:preview:"
)
