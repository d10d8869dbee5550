package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"
)

// PostgresRepo is the durable AuctionDB implementation backed by PostgreSQL.
type PostgresRepo struct {
	DB *sql.DB
}

// NewPostgresRepo creates a new PostgresRepo
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// InitializeTables creates the necessary tables if they don't exist
func (r *PostgresRepo) InitializeTables() error {
	_, err := r.DB.Exec(`
		CREATE TABLE IF NOT EXISTS auctions (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			start_price DOUBLE PRECISION NOT NULL,
			min_increment DOUBLE PRECISION NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			phase TEXT NOT NULL,
			winner_id TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("create auctions table: %w", err)
	}

	_, err = r.DB.Exec(`
		CREATE TABLE IF NOT EXISTS bids (
			id TEXT PRIMARY KEY,
			auction_id TEXT NOT NULL REFERENCES auctions(id),
			user_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create bids table: %w", err)
	}

	_, err = r.DB.Exec(`CREATE INDEX IF NOT EXISTS idx_bids_auction_amount ON bids (auction_id, amount DESC)`)
	if err != nil {
		return fmt.Errorf("create bids index: %w", err)
	}

	return nil
}

// AddAuction stores a new auction record
func (r *PostgresRepo) AddAuction(a model.Auction) error {
	_, err := r.DB.Exec(
		`INSERT INTO auctions (id, product_id, category_id, title, start_price, min_increment, start_time, end_time, phase, winner_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.AuctionID, a.ProductID, a.CategoryID, a.Title, a.StartPrice, a.MinIncrement, a.StartTime, a.EndTime, a.Phase, a.WinnerID,
	)
	if err != nil {
		return fmt.Errorf("add auction %s: %w", a.AuctionID, err)
	}
	return nil
}

// GetAuction returns the auction record by id
func (r *PostgresRepo) GetAuction(auctionID string) (model.Auction, error) {
	row := r.DB.QueryRow(
		`SELECT id, product_id, category_id, title, start_price, min_increment, start_time, end_time, phase, winner_id
		 FROM auctions WHERE id = $1`, auctionID,
	)

	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// UpdateAuctionPhase applies the phase change only when the stored phase
// still matches `from`. The WHERE clause makes the compare-and-set a single
// transactional write.
func (r *PostgresRepo) UpdateAuctionPhase(auctionID string, from, to model.Phase) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE auctions SET phase = $3 WHERE id = $1 AND phase = $2`,
		auctionID, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("update phase for auction %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update phase for auction %s: %w", auctionID, err)
	}
	return n > 0, nil
}

// SetWinner records the winning bidder on a finished auction
func (r *PostgresRepo) SetWinner(auctionID, userID string) error {
	_, err := r.DB.Exec(`UPDATE auctions SET winner_id = $2 WHERE id = $1`, auctionID, userID)
	if err != nil {
		return fmt.Errorf("set winner for auction %s: %w", auctionID, err)
	}
	return nil
}

// RecordBid appends an accepted bid to the ledger
func (r *PostgresRepo) RecordBid(b model.Bid) error {
	_, err := r.DB.Exec(
		`INSERT INTO bids (id, auction_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4, $5)`,
		b.BidID, b.AuctionID, b.UserID, b.Amount, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record bid for auction %s: %w", b.AuctionID, err)
	}
	return nil
}

// GetBidsByAuction returns all bids for an auction ordered by creation time
func (r *PostgresRepo) GetBidsByAuction(auctionID string) ([]model.Bid, error) {
	rows, err := r.DB.Query(
		`SELECT id, auction_id, user_id, amount, created_at FROM bids WHERE auction_id = $1 ORDER BY created_at ASC`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid for auction %s: %w", auctionID, err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return bids, nil
}

// GetWinningBid returns the max-amount bid for an auction; earliest wins ties
func (r *PostgresRepo) GetWinningBid(auctionID string) (model.Bid, error) {
	row := r.DB.QueryRow(
		`SELECT id, auction_id, user_id, amount, created_at FROM bids
		 WHERE auction_id = $1 ORDER BY amount DESC, created_at ASC LIMIT 1`,
		auctionID,
	)

	var b model.Bid
	err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
		}
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, err)
	}
	return b, nil
}

// GetAuctionsByUser returns all auctions the user has bid on
func (r *PostgresRepo) GetAuctionsByUser(userID string) ([]model.Auction, error) {
	rows, err := r.DB.Query(
		`SELECT DISTINCT a.id, a.product_id, a.category_id, a.title, a.start_price, a.min_increment, a.start_time, a.end_time, a.phase, a.winner_id
		 FROM auctions a JOIN bids b ON b.auction_id = a.id
		 WHERE b.user_id = $1 ORDER BY a.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, auctionerrors.ErrUserNoBids)
	}
	return auctions, nil
}

// AuctionsNeedingSchedule returns unfinished auctions whose end time is still ahead of now
func (r *PostgresRepo) AuctionsNeedingSchedule(now time.Time) ([]model.Auction, error) {
	rows, err := r.DB.Query(
		`SELECT id, product_id, category_id, title, start_price, min_increment, start_time, end_time, phase, winner_id
		 FROM auctions WHERE phase IN ($1, $2) AND end_time > $3 ORDER BY id`,
		model.PhaseUpcoming, model.PhaseOngoing, now,
	)
	if err != nil {
		return nil, fmt.Errorf("auctions needing schedule: %w", err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, fmt.Errorf("auctions needing schedule: %w", err)
	}
	return auctions, nil
}

// AllUnfinished returns every auction not yet in the FINISHED phase
func (r *PostgresRepo) AllUnfinished() ([]model.Auction, error) {
	rows, err := r.DB.Query(
		`SELECT id, product_id, category_id, title, start_price, min_increment, start_time, end_time, phase, winner_id
		 FROM auctions WHERE phase <> $1 ORDER BY id`,
		model.PhaseFinished,
	)
	if err != nil {
		return nil, fmt.Errorf("all unfinished auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, fmt.Errorf("all unfinished auctions: %w", err)
	}
	return auctions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var a model.Auction
	err := row.Scan(
		&a.AuctionID, &a.ProductID, &a.CategoryID, &a.Title,
		&a.StartPrice, &a.MinIncrement, &a.StartTime, &a.EndTime,
		&a.Phase, &a.WinnerID,
	)
	return a, err
}

func collectAuctions(rows *sql.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}
