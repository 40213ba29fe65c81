package handler

import (
	"Mosaic/internal/api/config"
	"Mosaic/internal/api/dto"
	"Mosaic/internal/api/middleware"
	"Mosaic/internal/pkg/hub"
	"Mosaic/internal/pkg/response"
	"Mosaic/internal/pkg/security"
	"Mosaic/internal/service"
	"context"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	imSvc service.IMService
	bus   *hub.Bus
}

func NewWsHandler(imSvc service.IMService, bus *hub.Bus) *WsHandler {
	return &WsHandler{
		imSvc: imSvc,
		bus:   bus,
	}
}

// Connect 建立 Websocket 连接并进入帧循环
// 连接即在线：注册表登记、广播上线、下发在线快照都在 Connect 里完成
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := middleware.ExtractToken(c)
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	client := hub.NewClient(userID, conn, config.Cfg.IM.SendBufferSize)
	go client.WritePump()

	ctx := context.Background()
	s.bus.Connect(ctx, client)
	defer s.bus.Disconnect(ctx, client)

	log.Info("用户 WS 连接已建立", "user_id", userID, "handle_id", client.HandleID)

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			log.Info("用户 WS 连接已断开", "user_id", userID, "handle_id", client.HandleID)
			return
		}
		s.handleFrame(ctx, client, frame)
	}
}

// handleFrame 上行帧分发
// 帧的会话成员校验失败时静默忽略，不给客户端探测他人会话的机会
func (s *WsHandler) handleFrame(ctx context.Context, client *hub.Client, frame *dto.ClientFrame) {
	if frame.ConversationID == "" {
		return
	}

	switch frame.Type {
	case dto.FrameJoinConversation:
		if err := s.imSvc.CheckParticipant(ctx, client.UserID, frame.ConversationID); err != nil {
			log.Warn("join conversation rejected", "user_id", client.UserID,
				"conversation_id", frame.ConversationID, "err", err)
			return
		}
		s.bus.Join(client, frame.ConversationID)

	case dto.FrameLeaveConversation:
		s.bus.Leave(client, frame.ConversationID)

	case dto.FrameTypingStart:
		if !client.IsJoined(frame.ConversationID) {
			return
		}
		s.bus.TypingStart(ctx, frame.ConversationID, client.UserID)

	case dto.FrameTypingStop:
		if !client.IsJoined(frame.ConversationID) {
			return
		}
		s.bus.TypingStop(ctx, frame.ConversationID, client.UserID)

	case dto.FrameMessageRead:
		// 仅广播回执刷新对端 UI，持久化走显式的已读接口
		if !client.IsJoined(frame.ConversationID) {
			return
		}
		s.bus.PublishConversation(ctx, frame.ConversationID,
			dto.NewReadReceipt(frame.ConversationID, frame.MessageID, client.UserID))

	default:
		log.Warn("unknown ws frame", "type", frame.Type, "user_id", client.UserID)
	}
}
