package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
)

type sqliteTx struct {
	tx      *sql.Tx
	pending []domain.Event
}

func toNanos(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}

func encodeInt(x *big.Int) string {
	return domain.CloneInt(x).String()
}

func decodeInt(value string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("decode integer %q", value)
	}
	return x, nil
}

func encodeBinding(b domain.Binding[common.Address]) sql.NullString {
	addr, ok := b.Get()
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: addr.Hex(), Valid: true}
}

func decodeBinding(value sql.NullString) domain.Binding[common.Address] {
	if !value.Valid {
		return domain.Binding[common.Address]{}
	}
	return domain.BoundTo(common.HexToAddress(value.String))
}

const proposalColumns = `id, sequence, title, description, amount, recipient, proposer,
	votes_for, votes_against, start_time, end_time, status, proposal_type, veto_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var (
		p                              domain.Proposal
		id, recipient, proposer        string
		amount, votesFor, votesAgainst string
		start, end                     int64
		status, kind                   uint8
	)
	if err := row.Scan(&id, &p.Sequence, &p.Title, &p.Description, &amount, &recipient, &proposer,
		&votesFor, &votesAgainst, &start, &end, &status, &kind, &p.VetoReason); err != nil {
		return domain.Proposal{}, err
	}
	var err error
	if p.Amount, err = decodeInt(amount); err != nil {
		return domain.Proposal{}, err
	}
	if p.VotesFor, err = decodeInt(votesFor); err != nil {
		return domain.Proposal{}, err
	}
	if p.VotesAgainst, err = decodeInt(votesAgainst); err != nil {
		return domain.Proposal{}, err
	}
	p.ID = common.HexToHash(id)
	p.Recipient = common.HexToAddress(recipient)
	p.Proposer = common.HexToAddress(proposer)
	p.StartTime = fromNanos(start)
	p.EndTime = fromNanos(end)
	p.Status = domain.ProposalStatus(status)
	p.Type = domain.ProposalType(kind)
	return p, nil
}

func (t *sqliteTx) GetProposal(ctx context.Context, id common.Hash) (domain.Proposal, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id.Hex())
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Proposal{}, fmt.Errorf("proposal %s: %w", id.Hex(), storage.ErrNotFound)
	}
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

func (t *sqliteTx) PutProposal(ctx context.Context, p domain.Proposal) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO proposals (`+proposalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   votes_for = excluded.votes_for,
		   votes_against = excluded.votes_against,
		   status = excluded.status,
		   veto_reason = excluded.veto_reason`,
		p.ID.Hex(),
		p.Sequence,
		p.Title,
		p.Description,
		encodeInt(p.Amount),
		p.Recipient.Hex(),
		p.Proposer.Hex(),
		encodeInt(p.VotesFor),
		encodeInt(p.VotesAgainst),
		toNanos(p.StartTime),
		toNanos(p.EndTime),
		uint8(p.Status),
		uint8(p.Type),
		p.VetoReason,
	)
	if err != nil {
		return fmt.Errorf("put proposal: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListProposals(ctx context.Context, filter storage.ProposalFilter) ([]domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals`
	args := make([]any, 0, len(filter.Statuses))
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, uint8(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY sequence`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *sqliteTx) CountProposals(ctx context.Context) (uint64, error) {
	var count uint64
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM proposals`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count proposals: %w", err)
	}
	return count, nil
}

func (t *sqliteTx) GetVote(ctx context.Context, id common.Hash, voter common.Address) (domain.Vote, error) {
	var (
		support uint8
		weight  string
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT support, weight FROM votes WHERE proposal_id = ? AND voter = ?`,
		id.Hex(), voter.Hex(),
	).Scan(&support, &weight)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vote{Support: domain.SupportNone, Weight: new(big.Int)}, nil
	}
	if err != nil {
		return domain.Vote{}, fmt.Errorf("get vote: %w", err)
	}
	w, err := decodeInt(weight)
	if err != nil {
		return domain.Vote{}, err
	}
	return domain.Vote{Support: domain.Support(support), Weight: w}, nil
}

func (t *sqliteTx) PutVote(ctx context.Context, id common.Hash, voter common.Address, vote domain.Vote) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO votes (proposal_id, voter, support, weight) VALUES (?, ?, ?, ?)
		 ON CONFLICT(proposal_id, voter) DO UPDATE SET support = excluded.support, weight = excluded.weight`,
		id.Hex(), voter.Hex(), uint8(vote.Support), encodeInt(vote.Weight),
	)
	if err != nil {
		return fmt.Errorf("put vote: %w", err)
	}
	return nil
}

func (t *sqliteTx) GovernanceState(ctx context.Context) (domain.GovernanceState, bool, error) {
	var (
		state                             domain.GovernanceState
		standard, emergency, deliberation int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT standard_period, emergency_period, base_quorum_bps, min_deliberation,
		        max_active, active_proposals, next_sequence
		   FROM governance_state WHERE id = 1`,
	).Scan(&standard, &emergency, &state.Config.BaseQuorumBps, &deliberation,
		&state.Config.MaxActiveProposals, &state.ActiveProposals, &state.NextSequence)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GovernanceState{}, false, nil
	}
	if err != nil {
		return domain.GovernanceState{}, false, fmt.Errorf("get governance state: %w", err)
	}
	state.Config.StandardPeriod = time.Duration(standard)
	state.Config.EmergencyPeriod = time.Duration(emergency)
	state.Config.MinDeliberationPeriod = time.Duration(deliberation)
	return state, true, nil
}

func (t *sqliteTx) PutGovernanceState(ctx context.Context, state domain.GovernanceState) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO governance_state (id, standard_period, emergency_period, base_quorum_bps,
		   min_deliberation, max_active, active_proposals, next_sequence)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   standard_period = excluded.standard_period,
		   emergency_period = excluded.emergency_period,
		   base_quorum_bps = excluded.base_quorum_bps,
		   min_deliberation = excluded.min_deliberation,
		   max_active = excluded.max_active,
		   active_proposals = excluded.active_proposals,
		   next_sequence = excluded.next_sequence`,
		int64(state.Config.StandardPeriod),
		int64(state.Config.EmergencyPeriod),
		state.Config.BaseQuorumBps,
		int64(state.Config.MinDeliberationPeriod),
		state.Config.MaxActiveProposals,
		state.ActiveProposals,
		state.NextSequence,
	)
	if err != nil {
		return fmt.Errorf("put governance state: %w", err)
	}
	return nil
}

func (t *sqliteTx) TreasuryState(ctx context.Context) (storage.TreasuryState, bool, error) {
	var (
		balance, price string
		governance     sql.NullString
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance, price, governance FROM treasury_state WHERE id = 1`,
	).Scan(&balance, &price, &governance)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TreasuryState{Balance: new(big.Int), Price: new(big.Int)}, false, nil
	}
	if err != nil {
		return storage.TreasuryState{}, false, fmt.Errorf("get treasury state: %w", err)
	}
	state := storage.TreasuryState{Governance: decodeBinding(governance)}
	if state.Balance, err = decodeInt(balance); err != nil {
		return storage.TreasuryState{}, false, err
	}
	if state.Price, err = decodeInt(price); err != nil {
		return storage.TreasuryState{}, false, err
	}
	return state, true, nil
}

func (t *sqliteTx) PutTreasuryState(ctx context.Context, state storage.TreasuryState) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO treasury_state (id, balance, price, governance) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   balance = excluded.balance,
		   price = excluded.price,
		   governance = excluded.governance`,
		encodeInt(state.Balance), encodeInt(state.Price), encodeBinding(state.Governance),
	)
	if err != nil {
		return fmt.Errorf("put treasury state: %w", err)
	}
	return nil
}

func (t *sqliteTx) IsDonor(ctx context.Context, addr common.Address) (bool, error) {
	return t.exists(ctx, `SELECT 1 FROM donors WHERE address = ?`, addr.Hex())
}

func (t *sqliteTx) MarkDonor(ctx context.Context, addr common.Address) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT OR IGNORE INTO donors (address) VALUES (?)`, addr.Hex()); err != nil {
		return fmt.Errorf("mark donor: %w", err)
	}
	return nil
}

func (t *sqliteTx) CreditPayout(ctx context.Context, addr common.Address, amount *big.Int) error {
	current, err := t.Payout(ctx, addr)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO payouts (address, amount) VALUES (?, ?)
		 ON CONFLICT(address) DO UPDATE SET amount = excluded.amount`,
		addr.Hex(), encodeInt(current.Add(current, amount)),
	)
	if err != nil {
		return fmt.Errorf("credit payout: %w", err)
	}
	return nil
}

func (t *sqliteTx) Payout(ctx context.Context, addr common.Address) (*big.Int, error) {
	return t.amount(ctx, `SELECT amount FROM payouts WHERE address = ?`, addr.Hex())
}

func (t *sqliteTx) LedgerState(ctx context.Context) (storage.LedgerState, error) {
	var (
		supply         string
		minter, burner sql.NullString
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT total_supply, minter, burner FROM ledger_state WHERE id = 1`,
	).Scan(&supply, &minter, &burner)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LedgerState{TotalSupply: new(big.Int)}, nil
	}
	if err != nil {
		return storage.LedgerState{}, fmt.Errorf("get ledger state: %w", err)
	}
	total, err := decodeInt(supply)
	if err != nil {
		return storage.LedgerState{}, err
	}
	return storage.LedgerState{
		TotalSupply: total,
		Minter:      decodeBinding(minter),
		Burner:      decodeBinding(burner),
	}, nil
}

func (t *sqliteTx) PutLedgerState(ctx context.Context, state storage.LedgerState) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_state (id, total_supply, minter, burner) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   total_supply = excluded.total_supply,
		   minter = excluded.minter,
		   burner = excluded.burner`,
		encodeInt(state.TotalSupply), encodeBinding(state.Minter), encodeBinding(state.Burner),
	)
	if err != nil {
		return fmt.Errorf("put ledger state: %w", err)
	}
	return nil
}

func (t *sqliteTx) LedgerBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return t.amount(ctx, `SELECT balance FROM ledger_balances WHERE address = ?`, addr.Hex())
}

func (t *sqliteTx) PutLedgerBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	var err error
	if balance.Sign() == 0 {
		_, err = t.tx.ExecContext(ctx, `DELETE FROM ledger_balances WHERE address = ?`, addr.Hex())
	} else {
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO ledger_balances (address, balance) VALUES (?, ?)
			 ON CONFLICT(address) DO UPDATE SET balance = excluded.balance`,
			addr.Hex(), encodeInt(balance),
		)
	}
	if err != nil {
		return fmt.Errorf("put ledger balance: %w", err)
	}
	return nil
}

func (t *sqliteTx) HasGrant(ctx context.Context, grant domain.Grant) (bool, error) {
	return t.exists(ctx,
		`SELECT 1 FROM grants WHERE identity = ? AND capability = ?`,
		grant.Identity.Hex(), string(grant.Capability),
	)
}

func (t *sqliteTx) PutGrant(ctx context.Context, grant domain.Grant) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO grants (identity, capability) VALUES (?, ?)`,
		grant.Identity.Hex(), string(grant.Capability),
	)
	if err != nil {
		return fmt.Errorf("put grant: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteGrant(ctx context.Context, grant domain.Grant) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM grants WHERE identity = ? AND capability = ?`,
		grant.Identity.Hex(), string(grant.Capability),
	)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	return nil
}

func (t *sqliteTx) Capabilities(ctx context.Context, addr common.Address) ([]domain.Capability, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT capability FROM grants WHERE identity = ? ORDER BY capability`, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var out []domain.Capability
	for rows.Next() {
		var capability string
		if err := rows.Scan(&capability); err != nil {
			return nil, err
		}
		out = append(out, domain.Capability(capability))
	}
	return out, rows.Err()
}

// Holders orders by the lower-cased hex so the result matches byte order.
func (t *sqliteTx) Holders(ctx context.Context, capability domain.Capability) ([]common.Address, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT identity FROM grants WHERE capability = ? ORDER BY lower(identity)`, string(capability))
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, err
		}
		out = append(out, common.HexToAddress(identity))
	}
	return out, rows.Err()
}

func (t *sqliteTx) Emit(ctx context.Context, event domain.Event) (domain.Event, error) {
	event = event.Clone()
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return domain.Event{}, fmt.Errorf("encode event attributes: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (kind, at, proposal_id, actor, attributes) VALUES (?, ?, ?, ?, ?)`,
		string(event.Kind), toNanos(event.At), event.ProposalID.Hex(), event.Actor.Hex(), string(attrs),
	)
	if err != nil {
		return domain.Event{}, fmt.Errorf("journal event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.Event{}, fmt.Errorf("journal event: %w", err)
	}
	event.Seq = uint64(seq)
	t.pending = append(t.pending, event)
	return event, nil
}

func (t *sqliteTx) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT seq, kind, at, proposal_id, actor, attributes FROM events
		  WHERE seq > ? ORDER BY seq LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			event                 domain.Event
			kind, proposal, actor string
			attrs                 string
			at                    int64
		)
		if err := rows.Scan(&event.Seq, &kind, &at, &proposal, &actor, &attrs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &event.Attributes); err != nil {
			return nil, fmt.Errorf("decode event attributes: %w", err)
		}
		event.Kind = domain.EventKind(kind)
		event.At = fromNanos(at)
		event.ProposalID = common.HexToHash(proposal)
		event.Actor = common.HexToAddress(actor)
		out = append(out, event)
	}
	return out, rows.Err()
}

func (t *sqliteTx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found int
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *sqliteTx) amount(ctx context.Context, query string, args ...any) (*big.Int, error) {
	var value string
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeInt(value)
}
