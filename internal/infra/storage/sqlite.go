package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const paramRoyaltyFeeLimit = "royalty_fee_limit"

var models = []any{
	&domain.NonceFloorRecord{},
	&domain.CancelledNonceRecord{},
	&domain.ExecutedOrderRecord{},
	&domain.RoyaltyRecord{},
	&domain.WhitelistRecord{},
	&domain.ParameterRecord{},
	&domain.SettlementRecord{},
	&domain.CancellationRecord{},
}

// Storage persists ledgers, registries and the settlement journal in SQLite.
// It implements nonce.Store, registry.Store, royalty.Store and engine.Journal.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (creating if needed) the SQLite database at dbPath.
// An empty dbPath resolves to the per-user data directory.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve DB path")
		}
		dbPath = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create DB directory")
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Auto Migration
	if err := db.AutoMigrate(models...); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "BooksRare", "data", "exchange.db"), nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Close())
}

// ======================================================================================
// Nonce Ledger
// ======================================================================================

// SaveFloor stores the signer's nonce floor.
func (s *Storage) SaveFloor(signer common.Address, floor uint64) error {
	rec := domain.NonceFloorRecord{Signer: signer.Hex(), Floor: domain.Uint64Text(floor), UpdatedAt: time.Now()}
	return errors.Wrap(s.db.Save(&rec).Error, "save nonce floor")
}

// SaveCancelled stores individually cancelled nonces. Already stored pairs are skipped.
func (s *Storage) SaveCancelled(signer common.Address, nonces []uint64) error {
	if len(nonces) == 0 {
		return nil
	}
	now := time.Now()
	recs := make([]domain.CancelledNonceRecord, len(nonces))
	for i, n := range nonces {
		recs[i] = domain.CancelledNonceRecord{Signer: signer.Hex(), Nonce: domain.Uint64Text(n), CreatedAt: now}
	}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&recs).Error
	return errors.Wrap(err, "save cancelled nonces")
}

// LoadNonces returns every persisted floor, cancelled nonce and executed order.
func (s *Storage) LoadNonces() (map[common.Address]uint64, map[common.Address][]uint64, []domain.ExecutedOrderRecord, error) {
	var floors []domain.NonceFloorRecord
	if err := s.db.Find(&floors).Error; err != nil {
		return nil, nil, nil, errors.Wrap(err, "load nonce floors")
	}
	var cancelled []domain.CancelledNonceRecord
	if err := s.db.Order("signer, nonce").Find(&cancelled).Error; err != nil {
		return nil, nil, nil, errors.Wrap(err, "load cancelled nonces")
	}
	var executed []domain.ExecutedOrderRecord
	if err := s.db.Find(&executed).Error; err != nil {
		return nil, nil, nil, errors.Wrap(err, "load executed orders")
	}

	floorMap := make(map[common.Address]uint64, len(floors))
	for _, f := range floors {
		floorMap[common.HexToAddress(f.Signer)] = uint64(f.Floor)
	}
	cancelledMap := make(map[common.Address][]uint64)
	for _, c := range cancelled {
		a := common.HexToAddress(c.Signer)
		cancelledMap[a] = append(cancelledMap[a], uint64(c.Nonce))
	}
	return floorMap, cancelledMap, executed, nil
}

// ======================================================================================
// Whitelists
// ======================================================================================

// AddMember stores id as a member of list at position.
func (s *Storage) AddMember(list string, id common.Address, position uint64) error {
	rec := domain.WhitelistRecord{List: list, Identity: id.Hex(), Position: position, CreatedAt: time.Now()}
	return errors.Wrapf(s.db.Save(&rec).Error, "add %s member", list)
}

// RemoveMember deletes id from list.
func (s *Storage) RemoveMember(list string, id common.Address) error {
	err := s.db.Where("list = ? AND identity = ?", list, id.Hex()).Delete(&domain.WhitelistRecord{}).Error
	return errors.Wrapf(err, "remove %s member", list)
}

// LoadWhitelist returns the members of list in insertion order.
func (s *Storage) LoadWhitelist(list string) ([]common.Address, error) {
	var recs []domain.WhitelistRecord
	if err := s.db.Where("list = ?", list).Order("position").Find(&recs).Error; err != nil {
		return nil, errors.Wrapf(err, "load %s whitelist", list)
	}
	out := make([]common.Address, len(recs))
	for i, r := range recs {
		out[i] = common.HexToAddress(r.Identity)
	}
	return out, nil
}

// ======================================================================================
// Royalty
// ======================================================================================

// SaveRoyalty stores the royalty information of a collection.
func (s *Storage) SaveRoyalty(collection common.Address, info domain.RoyaltyInfo) error {
	rec := domain.RoyaltyRecord{
		Collection: collection.Hex(),
		Setter:     info.Setter.Hex(),
		Receiver:   info.Receiver.Hex(),
		FeeBps:     info.FeeBps,
		UpdatedAt:  time.Now(),
	}
	return errors.Wrap(s.db.Save(&rec).Error, "save royalty info")
}

// SaveFeeLimit stores the royalty fee limit.
func (s *Storage) SaveFeeLimit(limit uint64) error {
	return s.saveParameter(paramRoyaltyFeeLimit, strconv.FormatUint(limit, 10))
}

// LoadRoyalties returns the stored fee limit (ok is false when never set) and all entries.
func (s *Storage) LoadRoyalties() (limit uint64, ok bool, infos map[common.Address]domain.RoyaltyInfo, err error) {
	raw, found, err := s.loadParameter(paramRoyaltyFeeLimit)
	if err != nil {
		return 0, false, nil, err
	}
	if found {
		limit, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, false, nil, errors.Wrapf(err, "parse %s", paramRoyaltyFeeLimit)
		}
	}

	var recs []domain.RoyaltyRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return 0, false, nil, errors.Wrap(err, "load royalty infos")
	}
	infos = make(map[common.Address]domain.RoyaltyInfo, len(recs))
	for _, r := range recs {
		infos[common.HexToAddress(r.Collection)] = domain.RoyaltyInfo{
			Setter:   common.HexToAddress(r.Setter),
			Receiver: common.HexToAddress(r.Receiver),
			FeeBps:   r.FeeBps,
		}
	}
	return limit, found, infos, nil
}

func (s *Storage) saveParameter(key, value string) error {
	rec := domain.ParameterRecord{Key: key, Value: value, UpdatedAt: time.Now()}
	return errors.Wrapf(s.db.Save(&rec).Error, "save parameter %s", key)
}

func (s *Storage) loadParameter(key string) (string, bool, error) {
	var rec domain.ParameterRecord
	err := s.db.Where(&domain.ParameterRecord{Key: key}).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil // Not found is not an error
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "load parameter %s", key)
	}
	return rec.Value, true, nil
}

// ======================================================================================
// Journal
// ======================================================================================

// RecordSettlement consumes the order digest and stores the settlement record in one
// transaction. A digest can only be recorded once.
func (s *Storage) RecordSettlement(ctx context.Context, st *domain.Settlement) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		executed := domain.ExecutedOrderRecord{
			Digest:    st.Digest.Hex(),
			Signer:    st.Maker.Hex(),
			Nonce:     domain.Uint64Text(st.Nonce),
			CreatedAt: st.ExecutedAt,
		}
		if err := tx.Create(&executed).Error; err != nil {
			return errors.Wrap(err, "insert executed order")
		}
		if err := tx.Create(st.Record()).Error; err != nil {
			return errors.Wrap(err, "insert settlement")
		}
		return nil
	})
	return errors.WithMessage(err, "record settlement")
}

// RecordCancellation appends a cancellation to the journal.
func (s *Storage) RecordCancellation(ctx context.Context, c *domain.Cancellation) error {
	parts := make([]string, len(c.Nonces))
	for i, n := range c.Nonces {
		parts[i] = strconv.FormatUint(n, 10)
	}
	rec := domain.CancellationRecord{
		Signer:   c.Signer.Hex(),
		NewFloor: domain.Uint64Text(c.NewFloor),
		Nonces:   strings.Join(parts, ","),
		At:       c.At,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rec).Error, "record cancellation")
}

// Settlement returns the journal entry of digest, or nil when unknown.
func (s *Storage) Settlement(digest common.Hash) (*domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := s.db.First(&rec, "digest = ?", digest.Hex()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load settlement")
	}
	return &rec, nil
}

// RecentSettlements returns up to limit settlements, newest first.
func (s *Storage) RecentSettlements(limit int) ([]domain.SettlementRecord, error) {
	var recs []domain.SettlementRecord
	err := s.db.Order("executed_at DESC").Limit(limit).Find(&recs).Error
	return recs, errors.Wrap(err, "load settlements")
}

// Cancellations returns the cancellation journal of signer in order.
func (s *Storage) Cancellations(signer common.Address) ([]domain.CancellationRecord, error) {
	var recs []domain.CancellationRecord
	err := s.db.Where("signer = ?", signer.Hex()).Order("id").Find(&recs).Error
	return recs, errors.Wrap(err, "load cancellations")
}
