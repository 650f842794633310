package service

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// CandidateApplier is the part of a peer connection the queue drains into.
type CandidateApplier interface {
	AddICECandidate(c domain.ICECandidate) error
}

// IceCandidateQueue holds remote candidates that arrived before the remote
// description was set.
type IceCandidateQueue struct {
	mu    sync.Mutex
	items []domain.ICECandidate
}

func NewIceCandidateQueue() *IceCandidateQueue {
	return &IceCandidateQueue{}
}

func (q *IceCandidateQueue) Enqueue(c domain.ICECandidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, c)
}

func (q *IceCandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *IceCandidateQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Drain applies every queued candidate in arrival order and empties the
// queue. The queue is detached before applying so a candidate can never be
// applied twice. A candidate the connection refuses is logged and skipped.
func (q *IceCandidateQueue) Drain(pc CandidateApplier) int {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	applied := 0
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Failed to apply queued ICE candidate")
			continue
		}
		applied++
	}
	if len(pending) > 0 {
		log.Debug().Int("queued", len(pending)).Int("applied", applied).Msg("Drained ICE candidate queue")
	}
	return applied
}
