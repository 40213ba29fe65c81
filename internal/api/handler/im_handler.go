package handler

import (
	"Mosaic/internal/api/dto"
	"Mosaic/internal/pkg/consts"
	"Mosaic/internal/pkg/minio"
	"Mosaic/internal/pkg/mongo"
	"Mosaic/internal/pkg/response"
	"Mosaic/internal/pkg/util"
	"Mosaic/internal/service"
	"bytes"
	"io"
	log "log/slog"
	"mime/multipart"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type IMHandler struct {
	imSvc service.IMService
}

func NewIMHandler(imSvc service.IMService) *IMHandler {
	return &IMHandler{
		imSvc: imSvc,
	}
}

// Send 发送消息
// multipart 形式：text 字段 + 可选的 image 文件；附件先传 MinIO 再落消息
func (s *IMHandler) Send(c *gin.Context) {
	receiverID, err := strconv.ParseUint(c.Param("receiver_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	input := &service.SendMessageInput{
		SenderID:   c.GetUint64("user_id"),
		ReceiverID: receiverID,
		Text:       c.PostForm("text"),
	}

	if file, err := c.FormFile("image"); err == nil {
		attachment, err := s.uploadAttachment(c, file)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.Attachment = attachment
	}

	msg, err := s.imSvc.SendMessage(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

func (s *IMHandler) uploadAttachment(c *gin.Context, file *multipart.FileHeader) (*mongo.Attachment, error) {
	if file.Size > consts.MaxAttachmentSize {
		return nil, service.ErrFileTooLarge
	}

	reader, err := file.Open()
	if err != nil {
		return nil, service.ErrParamInvalid
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.GetSafeContentType(reader)
	if err != nil {
		return nil, service.ErrParamInvalid
	}
	if !strings.HasPrefix(contentType, consts.MimePrefixImage) {
		return nil, service.ErrFileNotSupported
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, service.UnExpectedError
	}

	objectName := time.Now().Format("2006/01/02/") + uuid.NewString() + path.Ext(file.Filename)
	fileKey, err := minio.UploadFile(c.Request.Context(), objectName, bytes.NewReader(data), file.Size, contentType)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "MinIO upload failed", "err", err)
		return nil, service.UnExpectedError
	}

	attachment := &mongo.Attachment{
		URL:      minio.GetPublicURL(fileKey),
		MimeType: contentType,
	}
	if w, h, err := util.GetImageDimensions(data); err == nil {
		attachment.Width, attachment.Height = w, h
	} else {
		log.WarnContext(c.Request.Context(), "decode image dimensions failed", "err", err)
	}
	return attachment, nil
}

// GetMessages 拉取与某个用户的历史消息
func (s *IMHandler) GetMessages(c *gin.Context) {
	receiverID, err := strconv.ParseUint(c.Param("receiver_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	messages, err := s.imSvc.GetMessages(c.Request.Context(), c.GetUint64("user_id"), receiverID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, messages)
}

// GetConversations 会话列表
func (s *IMHandler) GetConversations(c *gin.Context) {
	list, err := s.imSvc.GetConversationList(c.Request.Context(), c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// MarkAsRead 标记会话内发给自己的消息为已读
func (s *IMHandler) MarkAsRead(c *gin.Context) {
	var req dto.MarkAsReadReq
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, err)
		return
	}

	modified, err := s.imSvc.MarkAsRead(c.Request.Context(), c.GetUint64("user_id"), req.ConversationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, map[string]int64{"modified": modified})
}

// Reset 清空自己的全部会话和消息
func (s *IMHandler) Reset(c *gin.Context) {
	result, err := s.imSvc.ResetConversations(c.Request.Context(), c.GetUint64("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
