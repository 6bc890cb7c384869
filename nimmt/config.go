package nimmt

import (
	"fmt"

	"nimmt-lite/card"
)

type Config struct {
	// Room
	MinPlayers int
	MaxPlayers int

	// Cards dealt to each player per round; also the number of turns per round.
	HandSize int

	// A resolution leaving any score at or above this ends the game.
	GameOverScore int

	// RNG seed (0 => time-based)
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		MinPlayers:    2,
		MaxPlayers:    10,
		HandSize:      10,
		GameOverScore: 66,
	}
}

func (c Config) validate() error {
	if c.MinPlayers < 2 {
		return fmt.Errorf("MinPlayers must be >= 2")
	}
	if c.MinPlayers > c.MaxPlayers {
		return fmt.Errorf("MinPlayers must be <= MaxPlayers")
	}
	if c.HandSize <= 0 {
		return fmt.Errorf("HandSize must be > 0")
	}
	if need := c.MaxPlayers*c.HandSize + TableRowCount; need > card.DeckSize {
		return fmt.Errorf("deck too small: %d players x %d cards + %d rows needs %d cards",
			c.MaxPlayers, c.HandSize, TableRowCount, need)
	}
	if c.GameOverScore <= 0 {
		return fmt.Errorf("GameOverScore must be > 0")
	}
	return nil
}
