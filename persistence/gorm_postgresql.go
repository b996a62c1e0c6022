// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tavern-games/gamesync/models"
)

// GormPostgreSQL implements Database on PostgreSQL through GORM.
type GormPostgreSQL struct {
	db            *gorm.DB
	startingCoins int
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string, startingCoins int) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormProfile{}, &models.GormGameRecord{}); err != nil {
		return nil, err
	}

	if startingCoins <= 0 {
		startingCoins = 100
	}
	return &GormPostgreSQL{db: db, startingCoins: startingCoins}, nil
}

// EnsureProfile returns the existing profile or creates one with the default
// balance. Name collisions fall back to a lookup, covering the create race.
func (p *GormPostgreSQL) EnsureProfile(playerID, name, avatarSeed string) (*models.Profile, error) {
	var row models.GormProfile
	err := p.db.Where("player_id = ?", playerID).First(&row).Error
	if err == nil {
		return toProfile(&row), nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	row = models.GormProfile{
		PlayerID:   playerID,
		Name:       name,
		AvatarSeed: avatarSeed,
		Coins:      p.startingCoins,
	}
	if err := p.db.Create(&row).Error; err != nil {
		var existing models.GormProfile
		if lookupErr := p.db.Where("name = ?", name).First(&existing).Error; lookupErr == nil {
			return toProfile(&existing), nil
		}
		return nil, err
	}
	return toProfile(&row), nil
}

func (p *GormPostgreSQL) LoadProfile(playerID string) (*models.Profile, error) {
	var row models.GormProfile
	if err := p.db.Where("player_id = ?", playerID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return toProfile(&row), nil
}

// AdjustCoins applies a wallet delta atomically and returns the new balance.
// A debit that would go negative is rejected inside the transaction.
func (p *GormPostgreSQL) AdjustCoins(playerID string, delta int) (int, error) {
	var balance int
	err := p.db.Transaction(func(tx *gorm.DB) error {
		var profile models.GormProfile
		if err := tx.Where("player_id = ?", playerID).First(&profile).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrProfileNotFound
			}
			return err
		}

		if delta < 0 && profile.Coins+delta < 0 {
			return ErrInsufficientCoins
		}

		if err := tx.Model(&profile).Update("coins", gorm.Expr("coins + ?", delta)).Error; err != nil {
			return err
		}

		if err := tx.Model(&profile).Update("stats", gorm.Expr(`
            jsonb_set(
                COALESCE(stats, '{}'::jsonb),
                '{total_coins}',
                to_jsonb(COALESCE((stats->>'total_coins')::int, 0) + ?)
            )
        `, delta)).Error; err != nil {
			return err
		}

		balance = profile.Coins + delta
		return nil
	})
	return balance, err
}

func (p *GormPostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	players := make(map[string]interface{}, len(record.Players))
	result := make(map[string]interface{}, len(record.Players))
	for _, pr := range record.Players {
		raw, err := json.Marshal(pr)
		if err != nil {
			return err
		}
		var entry map[string]interface{}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		players[pr.PlayerID] = entry
		result[pr.PlayerID] = map[string]interface{}{
			"outcome":     pr.Outcome,
			"coins_delta": pr.CoinsDelta,
		}
	}

	row := models.GormGameRecord{
		RoomCode: record.RoomCode,
		GameType: record.GameType,
		Players:  players,
		Result:   result,
	}
	return p.db.Create(&row).Error
}

func (p *GormPostgreSQL) GetPlayerStats(playerID string) (*models.PlayerStats, error) {
	var stats models.PlayerStats
	err := p.db.Raw(`
        SELECT
            COUNT(*) as total_games,
            SUM(CASE WHEN result->?->>'outcome' = 'win' THEN 1 ELSE 0 END) as wins,
            SUM(CASE WHEN result->?->>'outcome' = 'lose' THEN 1 ELSE 0 END) as losses,
            SUM(CASE WHEN result->?->>'outcome' = 'draw' THEN 1 ELSE 0 END) as draws,
            COALESCE(SUM((result->?->>'coins_delta')::int), 0) as total_coins
        FROM gorm_game_records
        WHERE jsonb_exists(players, ?)`,
		playerID, playerID, playerID, playerID, playerID,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toProfile(row *models.GormProfile) *models.Profile {
	return &models.Profile{
		PlayerID:   row.PlayerID,
		Name:       row.Name,
		AvatarSeed: row.AvatarSeed,
		Coins:      row.Coins,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
