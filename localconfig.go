package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/harborstake/minipoold/internal/lib/minipool"
	"github.com/harborstake/minipoold/internal/lib/protocol"
)

// Environment bootstrap for the reference collaborators.  Anything not set
// gets a usable default so queries and dry runs work out of the box.

func envPrice() uint64 {
	return envUint("MINIPOOL_COLLATERAL_PRICE", minipool.FractionScale)
}

func envPoolDeposits() uint64 {
	return envUint("MINIPOOL_POOL_DEPOSITS", 0)
}

func envAgents() []string {
	return envList("MINIPOOL_AGENTS")
}

func envEarlyParticipants() []string {
	return envList("MINIPOOL_EARLY_PARTICIPANTS")
}

func envUint(name string, defVal uint64) uint64 {
	strVal := os.Getenv(name)
	if strVal == "" {
		return defVal
	}
	intVal, err := strconv.ParseUint(strVal, 10, 64)
	if err != nil {
		return defVal
	}
	return intVal
}

func envList(name string) []string {
	strVal := os.Getenv(name)
	if strVal == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(strVal, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// erroringCredentialSource defers a missing credential seed until a command
// actually needs to register.
type erroringCredentialSource struct{}

func (erroringCredentialSource) CredentialsFor(string) ([]byte, error) {
	return nil, fmt.Errorf("no credential seed configured - set %s", protocol.CredentialSeedEnvName)
}

func credentialSourceOrErr(src *protocol.SeedCredentialSource) minipool.CredentialSource {
	if src == nil {
		return erroringCredentialSource{}
	}
	return src
}

// requireAccount enforces that --account (or MINIPOOL_ACCOUNT) was supplied
// for commands acting on behalf of an identity.
func requireAccount() (string, error) {
	if App.account == "" {
		return "", fmt.Errorf("an acting account is required - set --account or MINIPOOL_ACCOUNT")
	}
	return App.account, nil
}
