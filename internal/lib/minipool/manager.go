package minipool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// Manager is the minipool lifecycle manager: the per-entity state machine
// plus the fund-accounting engine.  External actors (owner, validator-agent)
// invoke its operations; the manager consults the guard layer and the
// transition table before mutating the record store and calling out to the
// external collaborators.
//
// Execution is single-writer and strictly sequential: the embedded mutex is
// the reentrancy guard - an operation holds it across its collaborator calls
// and its store commit, so no fund-moving entry point can be re-invoked while
// another is still executing.
type Manager struct {
	logger *slog.Logger
	store  *Store

	vault    Vault
	pool     LiquidStakerPool
	ledger   CollateralLedger
	oracle   PriceOracle
	params   ProtocolParams
	agents   AgentRegistry
	earlyReg EarlyParticipantRegistry
	registry ValidatorRegistry
	creds    CredentialSource
	clock    Clock

	sync.Mutex
}

// Collaborators bundles the injected external interfaces; every field is
// required.
type Collaborators struct {
	Vault             Vault
	Pool              LiquidStakerPool
	Ledger            CollateralLedger
	Oracle            PriceOracle
	Params            ProtocolParams
	Agents            AgentRegistry
	EarlyParticipants EarlyParticipantRegistry
	Registry          ValidatorRegistry
	Credentials       CredentialSource
	Clock             Clock
}

func New(logger *slog.Logger, store *Store, c Collaborators) (*Manager, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if c.Vault == nil || c.Pool == nil || c.Ledger == nil || c.Oracle == nil ||
		c.Params == nil || c.Agents == nil || c.EarlyParticipants == nil ||
		c.Registry == nil || c.Credentials == nil || c.Clock == nil {
		return nil, errors.New("every collaborator must be provided")
	}
	return &Manager{
		logger:   logger,
		store:    store,
		vault:    c.Vault,
		pool:     c.Pool,
		ledger:   c.Ledger,
		oracle:   c.Oracle,
		params:   c.Params,
		agents:   c.Agents,
		earlyReg: c.EarlyParticipants,
		registry: c.Registry,
		creds:    c.Credentials,
		clock:    c.Clock,
	}, nil
}

// --- guard layer ---

// ownedByIdentity resolves a record and verifies caller ownership.
func (m *Manager) ownedByIdentity(caller, identity string) (*Minipool, error) {
	mp, err := m.store.ByIdentity(identity)
	if err != nil {
		return nil, err
	}
	if mp.Owner != caller {
		return nil, ErrNotOwner
	}
	return mp, nil
}

// agentReported resolves a record and verifies the caller is its assigned
// validator-agent.
func (m *Manager) agentReported(caller, identity string) (*Minipool, error) {
	mp, err := m.store.ByIdentity(identity)
	if err != nil {
		return nil, err
	}
	if mp.AssignedAgent != caller {
		return nil, ErrNotAssignedAgent
	}
	return mp, nil
}

func (m *Manager) notifyStatus(mp *Minipool, from MinipoolStatus) {
	misc.Infof(m.logger, "minipool %d (%s) status %s -> %s", mp.Index, mp.ValidatorIdentity, from, mp.Status)
}
