package protocol

import (
	"sync"

	"github.com/harborstake/minipoold/internal/lib/minipool"
)

// AgentPool hands out reporting agents round-robin.
type AgentPool struct {
	sync.Mutex
	agents []string
	next   int
}

func NewAgentPool(agents ...string) *AgentPool {
	return &AgentPool{agents: agents}
}

func (a *AgentPool) AddAgent(id string) {
	a.Lock()
	defer a.Unlock()
	a.agents = append(a.agents, id)
}

func (a *AgentPool) NextAvailableAgent() (string, error) {
	a.Lock()
	defer a.Unlock()
	if len(a.agents) == 0 {
		return "", minipool.ErrNoAgentAvailable
	}
	agent := a.agents[a.next%len(a.agents)]
	a.next++
	return agent, nil
}

// EarlyParticipants records enrollment order for the reduced-capital tier.
type EarlyParticipants struct {
	sync.RWMutex
	order   []string
	indexes map[string]uint64
}

func NewEarlyParticipants(accounts ...string) *EarlyParticipants {
	e := &EarlyParticipants{indexes: map[string]uint64{}}
	for _, acct := range accounts {
		e.Enroll(acct)
	}
	return e
}

// Enroll appends the account if not already present.  Enrollment order is
// permanent; re-enrolling never changes an index.
func (e *EarlyParticipants) Enroll(account string) {
	e.Lock()
	defer e.Unlock()
	if _, ok := e.indexes[account]; ok {
		return
	}
	e.indexes[account] = uint64(len(e.order))
	e.order = append(e.order, account)
}

func (e *EarlyParticipants) IndexOf(account string) (uint64, bool, error) {
	e.RLock()
	defer e.RUnlock()
	idx, ok := e.indexes[account]
	return idx, ok, nil
}
