package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	grpcSvc "github.com/vogiaan1904/consultroom/internal/delivery/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	httpAddr       = flag.String("http", "http://localhost:8087", "HTTP base URL (admin calls)")
	grpcAddr       = flag.String("grpc", "localhost:50057", "gRPC address (client traffic)")
	numConsultants = flag.Int("consultants", 5, "Number of consultants to register")
	numClients     = flag.Int("clients", 50, "Number of clients to create")
	credits        = flag.Int64("credits", 5_000, "Credits granted to each client, in cents")
	specialty      = flag.String("service", "tarot", "Specialty shared by all consultants")
	endRate        = flag.Float64("end-rate", 0.2, "Probability an active session is ended per tick (0.0-1.0)")
	tick           = flag.Duration("tick", 5*time.Second, "Interval between end rounds")
	simulate       = flag.Bool("simulate", false, "Keep ending sessions at random until interrupted")
)

type stats struct {
	admitted atomic.Int64
	queued   atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
}

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Printf("Failed to dial gRPC: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	cli := grpcSvc.NewConsultationServiceClient(conn)

	runID := uuid.NewString()[:8]
	consultants := setupConsultants(ctx, cli, runID)
	clients := setupClients(runID)
	fmt.Printf("✅ %d consultants online, %d clients funded with %d cents each\n", len(consultants), len(clients), *credits)

	var st stats
	sessions, waiting := requestAll(ctx, cli, clients, &st)
	fmt.Printf("📊 Admitted: %d | Queued: %d | Rejected: %d | Errors: %d\n",
		st.admitted.Load(), st.queued.Load(), st.rejected.Load(), st.failed.Load())

	if !*simulate {
		fmt.Println("\n💡 Tip: Use --simulate to keep ending sessions so queued clients get admitted")
		return
	}

	runSimulation(ctx, cli, sessions, waiting)
}

func setupConsultants(ctx context.Context, cli grpcSvc.ConsultationServiceClient, runID string) []string {
	ids := make([]string, 0, *numConsultants)
	for i := range *numConsultants {
		id := fmt.Sprintf("sim-%s-consultant-%d", runID, i+1)
		body := map[string]any{
			"price_per_minute":      100 + rand.Int63n(400),
			"capacity":              1,
			"specialties":           []string{*specialty},
			"communication_methods": []string{"chat", "video"},
		}
		if err := put(*httpAddr+"/api/v1/consultants/"+id, body); err != nil {
			fmt.Printf("❌ Failed to register %s: %v\n", id, err)
			continue
		}
		if _, err := cli.SetPresence(ctx, &grpcSvc.SetPresenceRequest{ConsultantId: id, Online: true}); err != nil {
			fmt.Printf("❌ Failed to bring %s online: %v\n", id, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func setupClients(runID string) []string {
	ids := make([]string, 0, *numClients)
	for i := range *numClients {
		id := fmt.Sprintf("sim-%s-client-%d", runID, i+1)
		if err := post(*httpAddr+"/api/v1/clients/"+id+"/credits", map[string]any{"amount": *credits}); err != nil {
			fmt.Printf("❌ Failed to fund %s: %v\n", id, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func requestAll(ctx context.Context, cli grpcSvc.ConsultationServiceClient, clients []string, st *stats) ([]string, []string) {
	var (
		mu       sync.Mutex
		sessions []string
		waiting  []string
		wg       sync.WaitGroup
	)

	for _, id := range clients {
		wg.Go(func() {
			res, err := cli.RequestConsultation(ctx, &grpcSvc.RequestConsultationRequest{
				ClientId:            id,
				ServiceType:         *specialty,
				CommunicationMethod: "chat",
				MaxPricePerMinute:   1_000,
			})
			if err != nil {
				st.failed.Add(1)
				return
			}
			switch res.Outcome {
			case "admitted":
				st.admitted.Add(1)
				mu.Lock()
				sessions = append(sessions, res.Session.Id)
				mu.Unlock()
			case "queued":
				st.queued.Add(1)
				mu.Lock()
				waiting = append(waiting, res.RequestId)
				mu.Unlock()
			default:
				st.rejected.Add(1)
			}
		})
	}
	wg.Wait()

	return sessions, waiting
}

func runSimulation(ctx context.Context, cli grpcSvc.ConsultationServiceClient, sessions, waiting []string) {
	fmt.Printf("\n🎬 Ending %.0f%% of active sessions every %v. Press Ctrl+C to stop\n\n", *endRate*100, *tick)

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	active := make(map[string]bool, len(sessions))
	for _, id := range sessions {
		active[id] = true
	}
	queued := make(map[string]bool, len(waiting))
	for _, id := range waiting {
		queued[id] = true
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n🛑 Simulation stopped")
			fmt.Printf("   Sessions still tracked: %d | Still queued: %d\n", len(active), len(queued))
			return

		case <-ticker.C:
			for id := range queued {
				q, err := cli.GetQueueStatus(ctx, &grpcSvc.QueueRequest{RequestId: id})
				if err != nil {
					delete(queued, id)
					continue
				}
				if q.Status == "queued" {
					continue
				}
				if q.SessionId != "" {
					active[q.SessionId] = true
				}
				delete(queued, id)
			}

			ended := 0
			for id := range active {
				s, err := cli.GetSession(ctx, &grpcSvc.GetSessionRequest{SessionId: id})
				if err != nil || s.State != "active" {
					delete(active, id)
					continue
				}
				if rand.Float64() >= *endRate {
					continue
				}
				if _, err := cli.EndSession(ctx, &grpcSvc.EndSessionRequest{SessionId: id, Reason: "client_ended"}); err == nil {
					delete(active, id)
					ended++
				}
			}
			fmt.Printf("[%s] Ended: %d | Active: %d | Queued: %d\n", time.Now().Format("15:04:05"), ended, len(active), len(queued))
		}
	}
}

func put(url string, body any) error {
	return send(http.MethodPut, url, body)
}

func post(url string, body any) error {
	return send(http.MethodPost, url, body)
}

func send(method, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return nil
}
