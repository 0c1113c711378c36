package consts

// 消息内容类型
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// 用户在线状态
const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

// AllowedImageMimeTypes 图片消息允许的 MIME 类型
var AllowedImageMimeTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
}

// AllowedFileMimeTypes 文件消息允许的 MIME 类型
var AllowedFileMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}
