package models

// PushMessage 推送内容；Data 只能是扁平的字符串键值对
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// EmailContent 邮件内容（主题 / 纯文本 / HTML）
type EmailContent struct {
	Subject string
	Text    string
	HTML    string
}
