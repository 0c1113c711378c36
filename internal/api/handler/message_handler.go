package handler

import (
	"Aorko/internal/api/dto"
	"Aorko/internal/pkg/response"
	"Aorko/internal/service"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	imService      service.IMService
	historyService service.HistoryService
}

func NewMessageHandler(imService service.IMService, historyService service.HistoryService) *MessageHandler {
	return &MessageHandler{
		imService:      imService,
		historyService: historyService,
	}
}

// SendFile 大文件走 HTTP 上传，先落临时文件再复用消息发送主路径
func (s *MessageHandler) SendFile(c *gin.Context) {
	senderID := c.GetUint64("user_id")

	receiverID, err := strconv.ParseUint(c.PostForm("receiverId"), 10, 64)
	if err != nil || receiverID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	tmpPath := filepath.Join(os.TempDir(), "aorko-upload-"+uuid.NewString())
	if err = c.SaveUploadedFile(fileHeader, tmpPath); err != nil {
		response.Error(c, service.UnExpectedError)
		return
	}

	msg, err := s.imService.SendLocalFile(c.Request.Context(), senderID, receiverID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), tmpPath, fileHeader.Size)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &dto.FileUploadResp{
		Message: msg,
		URL:     msg.MessageContent.Content,
	})
}

// GetConversations 会话列表
func (s *MessageHandler) GetConversations(c *gin.Context) {
	userID := c.GetUint64("user_id")

	res, err := s.historyService.GetConversationList(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 活跃消息分页查询
func (s *MessageHandler) GetMessages(c *gin.Context) {
	var req dto.GetMessagesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.historyService.GetMessages(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetArchivedMessages 归档消息查询，带可选全文检索
func (s *MessageHandler) GetArchivedMessages(c *gin.Context) {
	var req dto.GetArchivedMessagesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.historyService.GetArchivedMessages(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
