package portfolio

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/statefile"
)

// BotState is the persisted spend ledger: how much the bot has committed
// cumulatively and which tokens it bought itself (as opposed to positions
// the operator already held).
type BotState struct {
	CumulativeSpend decimal.Decimal `json:"cumulative_spend"`
	ManagedTokens   []string        `json:"managed_tokens"`
}

// loadBotState restores the ledger; a missing or corrupt file resets to
// zeroes so a damaged state file can never block startup.
func loadBotState(store *statefile.Store) BotState {
	var st BotState
	ok, err := store.Load(&st)
	if err != nil {
		log.Warn().Err(err).Msg("💾 Bot state unreadable, resetting to zero")
		return BotState{CumulativeSpend: decimal.Zero}
	}
	if !ok {
		return BotState{CumulativeSpend: decimal.Zero}
	}
	log.Info().
		Str("cumulative_spend", st.CumulativeSpend.StringFixed(2)).
		Int("managed_tokens", len(st.ManagedTokens)).
		Msg("💾 Bot state loaded")
	return st
}

// managedSet converts the persisted token list to a set.
func managedSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// managedList converts the set back to a stable slice for persistence.
func managedList(set map[string]bool) []string {
	list := make([]string, 0, len(set))
	for t := range set {
		list = append(list, t)
	}
	return list
}
