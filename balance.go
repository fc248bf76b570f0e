package main

// Upgrade kinds purchasable with credits
const (
	UpgradeHP     = "hp"
	UpgradeShield = "shield"
	UpgradeSpeed  = "speed"
	UpgradeDamage = "damage"
)

const MaxUpgradeLevel = 16

// UpgradeSpec describes one upgrade track: what a level costs and what it
// adds per level
type UpgradeSpec struct {
	Kind     string
	BaseCost int     // cost of level 1; each level costs BaseCost * level
	PerLevel float64 // additive bonus per level (units depend on track)
}

// UpgradeCatalog is the full list of upgrade tracks
var UpgradeCatalog = []UpgradeSpec{
	{Kind: UpgradeHP, BaseCost: 400, PerLevel: 250},     // +250 max HP
	{Kind: UpgradeShield, BaseCost: 400, PerLevel: 200}, // +200 max shield
	{Kind: UpgradeSpeed, BaseCost: 600, PerLevel: 15},   // +15 units/s
	{Kind: UpgradeDamage, BaseCost: 800, PerLevel: 0.1}, // +10% damage
}

// UpgradeCatalogMap provides O(1) lookup by upgrade kind
var UpgradeCatalogMap map[string]UpgradeSpec

func init() {
	UpgradeCatalogMap = make(map[string]UpgradeSpec, len(UpgradeCatalog))
	for _, spec := range UpgradeCatalog {
		UpgradeCatalogMap[spec.Kind] = spec
	}
}

// UpgradeCost returns the credit cost of buying the next level
func UpgradeCost(spec UpgradeSpec, currentLevel int) int {
	return spec.BaseCost * (currentLevel + 1)
}

// Base player stats before upgrades
const (
	BasePlayerHP     = 4000
	BasePlayerShield = 2000
	BasePlayerSpeed  = 320.0 // units/s, used by the anti-teleport bound
	BasePlayerDamage = 120
)

// NPCArchetype is one stat tier of the NPC table
type NPCArchetype struct {
	Kind           string
	MaxHP          int
	MaxShield      int
	Damage         int
	AttackRange    float64
	AttackCooldown float64 // seconds
	Speed          float64
	DetectRange    float64 // 0 = no proactive aggression
	RewardCredits  int
	RewardXP       int
	RewardHonor    int
}

// NPCTiers is the archetype table, keyed by kind
var NPCTiers = map[string]NPCArchetype{
	"drifter": {
		Kind:           "drifter",
		MaxHP:          800,
		MaxShield:      400,
		Damage:         40,
		AttackRange:    450,
		AttackCooldown: 2.0,
		Speed:          180,
		DetectRange:    0,
		RewardCredits:  400,
		RewardXP:       100,
		RewardHonor:    2,
	},
	"marauder": {
		Kind:           "marauder",
		MaxHP:          3200,
		MaxShield:      1600,
		Damage:         110,
		AttackRange:    550,
		AttackCooldown: 1.5,
		Speed:          240,
		DetectRange:    900,
		RewardCredits:  1600,
		RewardXP:       400,
		RewardHonor:    8,
	},
}

// CalculateDamage is the deterministic damage function: base damage scaled
// by the attacker's damage upgrade multiplier. Combat resolution delegates
// all damage numbers here so balance changes stay in one place.
func CalculateDamage(base int, s *PlayerSession) int {
	mul := 1.0 + float64(s.Upgrades.Damage)*UpgradeCatalogMap[UpgradeDamage].PerLevel
	return int(float64(base) * mul)
}
