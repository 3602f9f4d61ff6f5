package session

import (
	"hash/maphash"
	"sync"
	"time"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingMemePhoto
	PhaseAwaitingMemeText
	PhaseAwaitingQuizAnswer
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingMemePhoto:
		return "awaiting_meme_photo"
	case PhaseAwaitingMemeText:
		return "awaiting_meme_text"
	case PhaseAwaitingQuizAnswer:
		return "awaiting_quiz_answer"
	default:
		return "idle"
	}
}

// State is what the bot waits for from one user next.
type State struct {
	Phase Phase

	PendingQuestionID    int64
	PendingOptions       []string
	PendingCorrectAnswer string

	PendingPhotoPath string

	UpdatedAt time.Time
}

// normalized drops the pending fields that do not belong to the phase.
func (s State) normalized() State {
	switch s.Phase {
	case PhaseAwaitingQuizAnswer:
		if s.PendingCorrectAnswer == "" {
			return State{Phase: PhaseIdle, UpdatedAt: s.UpdatedAt}
		}
		s.PendingPhotoPath = ""
		s.PendingOptions = append([]string(nil), s.PendingOptions...)
	case PhaseAwaitingMemeText:
		s.PendingQuestionID, s.PendingOptions, s.PendingCorrectAnswer = 0, nil, ""
	default:
		s = State{Phase: s.Phase, UpdatedAt: s.UpdatedAt}
	}
	return s
}

func (s State) clone() State {
	s.PendingOptions = append([]string(nil), s.PendingOptions...)
	if len(s.PendingOptions) == 0 {
		s.PendingOptions = nil
	}
	return s
}

const shardCount = 64

type shard struct {
	mu     sync.Mutex
	states map[int64]State
}

// Store keeps sessions in memory only, a restart brings every user back to Idle.
type Store struct {
	seed   maphash.Seed
	shards [shardCount]*shard
	now    func() time.Time
}

func NewStore() *Store {
	s := &Store{
		seed: maphash.MakeSeed(),
		now:  time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{states: make(map[int64]State)}
	}
	return s
}

func (s *Store) shardFor(userID int64) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return s.shards[h.Sum64()%shardCount]
}

// Get never fails, absent users are Idle.
func (s *Store) Get(userID int64) State {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.states[userID].clone()
}

func (s *Store) Set(userID int64, state State) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s.put(sh, userID, state)
}

// Clear resets the user to Idle and returns what was discarded.
func (s *Store) Clear(userID int64) State {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev := sh.states[userID]
	delete(sh.states, userID)
	return prev.clone()
}

// Update runs fn under the user's lock, so concurrent events of one user see either the old or the new state.
func (s *Store) Update(userID int64, fn func(current State) State) (prev State, next State) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev = sh.states[userID].clone()
	next = s.put(sh, userID, fn(prev.clone()))
	return prev, next.clone()
}

func (s *Store) put(sh *shard, userID int64, state State) State {
	state = state.normalized()
	if state.Phase == PhaseIdle {
		delete(sh.states, userID)
		return State{}
	}
	state.UpdatedAt = s.now()
	sh.states[userID] = state
	return state
}

// Len reports the number of users with a non-idle session.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.states)
		sh.mu.Unlock()
	}
	return n
}
