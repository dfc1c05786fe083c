package domain

import "strings"

type Identity string

const (
	IdentityCivilian Identity = "CIVILIAN"
	IdentitySuper    Identity = "SUPER"
)

func (i Identity) Valid() bool {
	return i == IdentityCivilian || i == IdentitySuper
}

// Stat names accepted wherever a stat key is referenced.
const (
	StatStrength  = "strength"
	StatAgility   = "agility"
	StatIntellect = "intellect"
	StatCharisma  = "charisma"
)

var StatNames = []string{StatStrength, StatAgility, StatIntellect, StatCharisma}

type Stats struct {
	Strength  float64 `json:"strength"`
	Agility   float64 `json:"agility"`
	Intellect float64 `json:"intellect"`
	Charisma  float64 `json:"charisma"`
}

// Get returns the named stat.
func (s Stats) Get(name string) (float64, bool) {
	switch strings.ToLower(name) {
	case StatStrength:
		return s.Strength, true
	case StatAgility:
		return s.Agility, true
	case StatIntellect:
		return s.Intellect, true
	case StatCharisma:
		return s.Charisma, true
	}
	return 0, false
}

// Add returns a copy with delta added to the named stat. Unknown names are ignored.
func (s Stats) Add(name string, delta float64) Stats {
	switch strings.ToLower(name) {
	case StatStrength:
		s.Strength += delta
	case StatAgility:
		s.Agility += delta
	case StatIntellect:
		s.Intellect += delta
	case StatCharisma:
		s.Charisma += delta
	}
	return s
}

func IsStat(name string) bool {
	_, ok := Stats{}.Get(name)
	return ok
}

// Resource bounds.
const (
	MaskMin    = 0
	MaskMax    = 100
	FameMin    = 0
	FameMax    = 100
	OpinionMin = -100
	OpinionMax = 100
)

type Resources struct {
	Money         int `json:"money"`
	Mask          int `json:"mask"`
	Fame          int `json:"fame"`
	PublicOpinion int `json:"publicOpinion"`
}

// Clamped forces every field into its range. Money has no upper bound.
func (r Resources) Clamped() Resources {
	r.Money = clampInt(r.Money, 0, int(^uint(0)>>1))
	r.Mask = clampInt(r.Mask, MaskMin, MaskMax)
	r.Fame = clampInt(r.Fame, FameMin, FameMax)
	r.PublicOpinion = clampInt(r.PublicOpinion, OpinionMin, OpinionMax)
	return r
}

// Get returns a resource by name.
func (r Resources) Get(name string) (float64, bool) {
	switch strings.ToLower(name) {
	case "money":
		return float64(r.Money), true
	case "mask":
		return float64(r.Mask), true
	case "fame":
		return float64(r.Fame), true
	case "publicopinion", "public_opinion":
		return float64(r.PublicOpinion), true
	}
	return 0, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type Slot string

const (
	SlotHead      Slot = "HEAD"
	SlotBody      Slot = "BODY"
	SlotGadget    Slot = "GADGET"
	SlotAccessory Slot = "ACCESSORY"
)

var Slots = []Slot{SlotHead, SlotBody, SlotGadget, SlotAccessory}

func (s Slot) Valid() bool {
	for _, v := range Slots {
		if v == s {
			return true
		}
	}
	return false
}

type Item struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Slot        Slot               `json:"slot,omitempty"`
	StatBonuses map[string]float64 `json:"statBonuses,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Price       int                `json:"price,omitempty"`
}

type BaseUpgrade struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Cost              int            `json:"cost"`
	Owned             bool           `json:"owned"`
	TrainingModifiers map[string]int `json:"trainingModifiers,omitempty"`
	WorkMoneyBonus    int            `json:"workMoneyBonus,omitempty"`
}

type Power struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Level       int    `json:"level"`
	MaxLevel    int    `json:"maxLevel"`
	XP          int    `json:"xp"`
}

type Player struct {
	Identity       Identity        `json:"identity"`
	CivilianName   string          `json:"civilianName"`
	SuperName      string          `json:"superName"`
	Stats          Stats           `json:"stats"`
	Resources      Resources       `json:"resources"`
	SkillPoints    int             `json:"skillPoints"`
	Inventory      []string        `json:"inventory"`
	Equipment      map[Slot]string `json:"equipment"`
	BaseUpgrades   []BaseUpgrade   `json:"baseUpgrades"`
	Powers         []Power         `json:"powers"`
	Reputations    map[string]int  `json:"reputations"`
	DowntimeTokens int             `json:"downtimeTokens"`
}

// DisplayName is the name shown for the active identity.
func (p Player) DisplayName() string {
	if p.Identity == IdentitySuper {
		return p.SuperName
	}
	return p.CivilianName
}

// Owns reports whether the item id is in the inventory.
func (p Player) Owns(itemID string) bool {
	for _, id := range p.Inventory {
		if id == itemID {
			return true
		}
	}
	return false
}

// OwnsUpgrade reports whether the upgrade id is owned.
func (p Player) OwnsUpgrade(id string) bool {
	for _, u := range p.BaseUpgrades {
		if u.ID == id && u.Owned {
			return true
		}
	}
	return false
}

func (p Player) Power(id string) (Power, int, bool) {
	for i, pw := range p.Powers {
		if pw.ID == id {
			return pw, i, true
		}
	}
	return Power{}, -1, false
}
