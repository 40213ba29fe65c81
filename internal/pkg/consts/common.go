package consts

const (
	MimePrefixImage = "image"
)

const (
	DefaultAvatarURL = "default_avatar.png"
)

// 附件大小上限 5MB
const MaxAttachmentSize = 5 << 20
