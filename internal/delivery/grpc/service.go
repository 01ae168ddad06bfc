package grpc

import (
	"context"
	"errors"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/service"
	pkgErrors "github.com/vogiaan1904/consultroom/pkg/errors"
	"github.com/vogiaan1904/consultroom/pkg/logger"
	resp "github.com/vogiaan1904/consultroom/pkg/response"
	"github.com/vogiaan1904/consultroom/pkg/util"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type grpcService struct {
	matching service.MatchingService
	sessions service.SessionManager
	ledger   service.LedgerService
	bc       service.Broadcaster
	l        logger.Logger
}

func NewGrpcService(
	matching service.MatchingService,
	sessions service.SessionManager,
	ledger service.LedgerService,
	bc service.Broadcaster,
	l logger.Logger,
) ConsultationServiceServer {
	return &grpcService{
		matching: matching,
		sessions: sessions,
		ledger:   ledger,
		bc:       bc,
		l:        l,
	}
}

// NewServer registers the consultation and health services on a new grpc.Server.
func NewServer(svc ConsultationServiceServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	RegisterConsultationServiceServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

func (s *grpcService) fail(ctx context.Context, op string, err error) error {
	mapped := mapGRPCError(err)

	var grpcErr *pkgErrors.GRPCError
	if errors.As(mapped, &grpcErr) {
		s.l.Debugf(ctx, "delivery.grpc.%s: %v", op, err)
	} else {
		s.l.Errorf(ctx, "delivery.grpc.%s: %v", op, err)
	}
	return resp.ParseGRPCError(mapped)
}

func (s *grpcService) RequestConsultation(ctx context.Context, req *RequestConsultationRequest) (*RequestConsultationResponse, error) {
	out, err := s.matching.RequestConsultation(ctx, service.RequestConsultationInput{
		ClientID:            req.ClientId,
		ConsultantID:        req.ConsultantId,
		ServiceType:         req.ServiceType,
		CommunicationMethod: models.CommunicationMethod(req.CommunicationMethod),
		MaxPricePerMinute:   models.Money(req.MaxPricePerMinute),
	})
	if err != nil {
		return nil, s.fail(ctx, "RequestConsultation", err)
	}

	return &RequestConsultationResponse{
		Outcome:              string(out.Outcome),
		RequestId:            out.RequestID,
		Session:              toSession(out.Session),
		Position:             out.Position,
		QueueLength:          out.QueueLength,
		EstimatedWaitMinutes: out.EstimatedWaitMinutes,
		RejectReason:         string(out.RejectReason),
	}, nil
}

func (s *grpcService) GetQueueStatus(ctx context.Context, req *QueueRequest) (*QueueStatusResponse, error) {
	out, err := s.matching.GetQueueStatus(ctx, req.RequestId)
	if err != nil {
		return nil, s.fail(ctx, "GetQueueStatus", err)
	}
	return toQueueStatus(out), nil
}

func (s *grpcService) CancelQueueEntry(ctx context.Context, req *QueueRequest) (*CancelQueueEntryResponse, error) {
	if err := s.matching.CancelQueueEntry(ctx, req.RequestId); err != nil {
		return nil, s.fail(ctx, "CancelQueueEntry", err)
	}

	return &CancelQueueEntryResponse{
		RequestId: req.RequestId,
		Message:   "Queue left successfully",
	}, nil
}

func (s *grpcService) GetSession(ctx context.Context, req *GetSessionRequest) (*Session, error) {
	out, err := s.sessions.GetSession(ctx, req.SessionId)
	if err != nil {
		return nil, s.fail(ctx, "GetSession", err)
	}
	return toSession(out), nil
}

func (s *grpcService) EndSession(ctx context.Context, req *EndSessionRequest) (*Session, error) {
	out, err := s.sessions.EndSession(ctx, req.SessionId, models.EndReason(req.Reason))
	if err != nil {
		return nil, s.fail(ctx, "EndSession", err)
	}
	return toSession(out), nil
}

func (s *grpcService) ValidateRoomToken(ctx context.Context, req *ValidateRoomTokenRequest) (*RoomClaims, error) {
	claims, err := s.sessions.ValidateRoomToken(ctx, req.Token)
	if err != nil {
		return nil, s.fail(ctx, "ValidateRoomToken", err)
	}

	return &RoomClaims{
		SessionId:    claims.SessionID,
		ClientId:     claims.ClientID,
		ConsultantId: claims.ConsultantID,
		ExpiresAt:    util.TimeToISO8601Str(claims.ExpiresAt),
	}, nil
}

func (s *grpcService) SetPresence(ctx context.Context, req *SetPresenceRequest) (*Availability, error) {
	snap, err := s.matching.SetPresence(ctx, req.ConsultantId, req.Online)
	if err != nil {
		return nil, s.fail(ctx, "SetPresence", err)
	}
	return toAvailability(snap), nil
}

func (s *grpcService) GetBalance(ctx context.Context, req *GetBalanceRequest) (*Balance, error) {
	bal, err := s.ledger.GetBalance(ctx, req.ClientId)
	if err != nil {
		return nil, s.fail(ctx, "GetBalance", err)
	}

	return &Balance{
		ClientId: bal.ClientID,
		Normal:   int64(bal.Normal),
		Bonus:    int64(bal.Bonus),
		Total:    int64(bal.Total()),
	}, nil
}

func (s *grpcService) StreamClientUpdates(req *StreamClientUpdatesRequest, stream ConsultationService_StreamClientUpdatesServer) error {
	ctx := stream.Context()
	if req.ClientId == "" {
		return resp.ParseGRPCError(errInvalidRequest)
	}
	ctx = s.l.WithFields(ctx, "client_id", req.ClientId)

	updates, unsubscribe := s.bc.Subscribe(req.ClientId)
	defer unsubscribe()

	s.l.Info(ctx, "Starting client update stream")

	for {
		select {
		case <-ctx.Done():
			s.l.Info(ctx, "Client update stream cancelled by client")
			return ctx.Err()

		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := stream.Send(toClientUpdate(u)); err != nil {
				s.l.Errorf(ctx, "delivery.grpc.StreamClientUpdates: send: %v", err)
				return err
			}
			s.l.Debugf(ctx, "Sent client update %s", u.Type)
		}
	}
}
