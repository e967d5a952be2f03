package protocol

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// CredentialSeedEnvName is the environment variable holding the secret seed
// credentials are derived from.
const CredentialSeedEnvName = "MINIPOOL_CREDENTIAL_SEED"

// SeedCredentialSource derives deterministic per-identity registration
// credentials by keyed hashing of the identity with a secret seed.
type SeedCredentialSource struct {
	seed []byte
}

func NewSeedCredentialSource() (*SeedCredentialSource, error) {
	seed := misc.GetSecret(CredentialSeedEnvName)
	if seed == "" {
		return nil, fmt.Errorf("%s is not set", CredentialSeedEnvName)
	}
	return &SeedCredentialSource{seed: []byte(seed)}, nil
}

func (s *SeedCredentialSource) CredentialsFor(identity string) ([]byte, error) {
	if identity == "" {
		return nil, fmt.Errorf("cannot derive credentials for empty identity")
	}
	h, err := blake2b.New256(s.seed)
	if err != nil {
		return nil, fmt.Errorf("initializing credential hash: %w", err)
	}
	h.Write([]byte(identity))
	return h.Sum(nil), nil
}

// RecordingRegistry is a ValidatorRegistry that tracks committed capital per
// credential set.  A production deployment would submit to the external
// validation network here.
type RecordingRegistry struct {
	sync.Mutex
	committed map[string]uint64
	total     uint64
}

func NewRecordingRegistry() *RecordingRegistry {
	return &RecordingRegistry{committed: map[string]uint64{}}
}

func (r *RecordingRegistry) Register(credentials []byte, amount uint64) error {
	if len(credentials) == 0 {
		return fmt.Errorf("registration requires credentials")
	}
	r.Lock()
	defer r.Unlock()
	r.committed[string(credentials)] += amount
	r.total += amount
	return nil
}

func (r *RecordingRegistry) TotalCommitted() uint64 {
	r.Lock()
	defer r.Unlock()
	return r.total
}
