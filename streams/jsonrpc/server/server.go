package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/dexarb/arbitrage"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace = "arb"
	// ArbsSubscriptionMethod is the subscription method clients call as arb_subscribeArbs.
	ArbsSubscriptionMethod = "subscribeArbs"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SubscriptionEvent is the wrapper object sent to subscribers.
type SubscriptionEvent struct {
	Arbs   []arbitrage.ArbPath `json:"arbs"`
	SentAt int64               `json:"sentAt"`
}

// ArbStreamer fans every evaluated path set out to rpc subscribers. A new
// subscriber immediately receives the latest set. Slow subscribers skip
// intermediate sets; they always end up with the newest one.
type ArbStreamer struct {
	logger Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan []arbitrage.ArbPath
	latest []arbitrage.ArbPath
}

// NewArbStreamer creates an ArbStreamer.
func NewArbStreamer(logger Logger) (*ArbStreamer, error) {
	if logger == nil {
		return nil, errors.New("config: Logger is required")
	}
	return &ArbStreamer{
		logger: logger,
		subs:   make(map[int]chan []arbitrage.ArbPath),
	}, nil
}

// API is the rpc surface of an ArbStreamer. Only its methods are exposed.
type API struct {
	streamer *ArbStreamer
}

// NewServer registers streamer's API on a new rpc server.
func NewServer(streamer *ArbStreamer) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(RpcNamespace, &API{streamer: streamer}); err != nil {
		return nil, fmt.Errorf("failed to register %s API: %w", RpcNamespace, err)
	}
	return server, nil
}

// Run broadcasts every set received on arbs until ctx is cancelled or arbs is closed.
func (s *ArbStreamer) Run(ctx context.Context, arbs <-chan []arbitrage.ArbPath) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case set, ok := <-arbs:
			if !ok {
				return nil
			}
			s.Broadcast(set)
		}
	}
}

// Broadcast stores set as the latest and hands it to every subscriber.
func (s *ArbStreamer) Broadcast(set []arbitrage.ArbPath) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = set
	for _, ch := range s.subs {
		offerLatest(ch, set)
	}
}

// offerLatest replaces whatever ch buffers with set. Only the broadcaster
// sends on ch, under the streamer lock.
func offerLatest(ch chan []arbitrage.ArbPath, set []arbitrage.ArbPath) {
	select {
	case <-ch:
	default:
	}
	ch <- set
}

func (s *ArbStreamer) subscribe() (int, <-chan []arbitrage.ArbPath) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan []arbitrage.ArbPath, 1)
	if s.latest != nil {
		ch <- s.latest
	}
	s.subs[id] = ch
	return id, ch
}

func (s *ArbStreamer) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Subscribers returns the number of live subscriptions.
func (s *ArbStreamer) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// SubscribeArbs is exposed over rpc as arb_subscribeArbs.
func (api *API) SubscribeArbs(ctx context.Context) (*rpc.Subscription, error) {
	s := api.streamer
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	id, ch := s.subscribe()
	s.logger.Info("Arb subscriber connected", "subscription", rpcSub.ID)

	go func() {
		defer s.unsubscribe(id)
		for {
			select {
			case set := <-ch:
				event := SubscriptionEvent{Arbs: set, SentAt: time.Now().UnixNano()}
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					s.logger.Warn("Failed to notify arb subscriber", "subscription", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				s.logger.Info("Arb subscriber disconnected", "subscription", rpcSub.ID)
				return
			}
		}
	}()
	return rpcSub, nil
}
