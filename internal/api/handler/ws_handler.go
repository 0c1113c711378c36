package handler

import (
	"Aorko/internal/api/config"
	"Aorko/internal/im"
	"Aorko/internal/pkg/response"
	"Aorko/internal/service"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	authService service.AuthService
	hub         *im.Hub
	sendBuffer  int
	maxMsgBytes int64
}

func NewWsHandler(authService service.AuthService, hub *im.Hub, imCfg config.IMConfig) *WsHandler {
	// base64 内联附件带 4/3 膨胀，读上限按膨胀后的体积放
	return &WsHandler{
		authService: authService,
		hub:         hub,
		sendBuffer:  imCfg.SendBuffer,
		maxMsgBytes: imCfg.MaxFileBytes*4/3 + 4096,
	}
}

// Connect WS 接入：先鉴权后升级，凭据问题在升级前返回
func (s *WsHandler) Connect(c *gin.Context) {
	user, err := s.authService.VerifyCredential(c.Request.Context(), c.Query("token"))
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	client := im.NewClient(s.hub, conn, user.ID, s.sendBuffer)
	client.Serve(c.Request.Context(), s.maxMsgBytes)
}
