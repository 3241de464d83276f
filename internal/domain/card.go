package domain

// Collection identifies which NFT collection a card was minted in.
// The set is closed: power multipliers are defined per collection and an
// unknown tag is a logged fail path, not a silent default.
type Collection string

const (
	CollectionBase    Collection = "base"
	CollectionVibe    Collection = "vibe"
	CollectionVibeFID Collection = "vibefid"
	CollectionNothing Collection = "nothing"
)

// Card is an immutable snapshot of a minted card. Power-relevant fields are
// captured when a deck is saved so later metadata changes cannot alter an
// in-flight raid.
type Card struct {
	TokenID    string     `db:"token_id" json:"token_id"`
	Name       string     `db:"name" json:"name,omitempty"`
	Collection Collection `db:"collection" json:"collection"`
	BasePower  int64      `db:"base_power" json:"base_power"`
	Rarity     string     `db:"rarity" json:"rarity,omitempty"`
	Foil       string     `db:"foil" json:"foil,omitempty"`
	Wear       string     `db:"wear" json:"wear,omitempty"`
}
