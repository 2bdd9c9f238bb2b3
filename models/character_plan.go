package models

import (
	"fmt"
	"time"
)

const (
	MinStatValue  = 1
	MaxStatValue  = 20
	MaxSkillRunes = 50
)

// BaseAllocation is the multiset every level 1 stat vector must be a permutation of.
var BaseAllocation = [4]int{15, 14, 12, 10}

// Stat names accepted in bonus picks.
const (
	StatStrength     = "str"
	StatDexterity    = "dex"
	StatConstitution = "con"
	StatIntelligence = "int"
)

var StatNames = []string{StatStrength, StatDexterity, StatConstitution, StatIntelligence}

// StatVector holds the four character stats. A zero value means unset.
type StatVector struct {
	Str int `json:"str"`
	Dex int `json:"dex"`
	Con int `json:"con"`
	Int int `json:"int"`
}

func (v StatVector) Values() [4]int { return [4]int{v.Str, v.Dex, v.Con, v.Int} }

func (v StatVector) Add(o StatVector) StatVector {
	return StatVector{Str: v.Str + o.Str, Dex: v.Dex + o.Dex, Con: v.Con + o.Con, Int: v.Int + o.Int}
}

func (v StatVector) Sub(o StatVector) StatVector {
	return StatVector{Str: v.Str - o.Str, Dex: v.Dex - o.Dex, Con: v.Con - o.Con, Int: v.Int - o.Int}
}

func (v StatVector) Sum() int { return v.Str + v.Dex + v.Con + v.Int }

func (v StatVector) IsZero() bool { return v == StatVector{} }

// Complete reports whether all four stats carry a value.
func (v StatVector) Complete() bool {
	return v.Str != 0 && v.Dex != 0 && v.Con != 0 && v.Int != 0
}

// Bump returns v with the named stat raised by one.
func (v StatVector) Bump(stat string) (StatVector, error) {
	switch stat {
	case StatStrength:
		v.Str++
	case StatDexterity:
		v.Dex++
	case StatConstitution:
		v.Con++
	case StatIntelligence:
		v.Int++
	default:
		return v, fmt.Errorf("unknown stat %q", stat)
	}
	return v, nil
}

// PlanTier is one level of a growth plan.
type PlanTier struct {
	StatVector `gorm:"embedded"`
	Skill      string `json:"skill" gorm:"size:200"`
}

func (t PlanTier) IsSet() bool { return !t.StatVector.IsZero() }

// CharacterPlan is the per-level growth allocation of a character.
type CharacterPlan struct {
	CharacterID string    `json:"character_id" gorm:"primaryKey"`
	Lv1         PlanTier  `json:"lv1" gorm:"embedded;embeddedPrefix:lv1_"`
	Lv2         PlanTier  `json:"lv2" gorm:"embedded;embeddedPrefix:lv2_"`
	Lv3         PlanTier  `json:"lv3" gorm:"embedded;embeddedPrefix:lv3_"`
	Revision    int       `json:"revision" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Tier returns the tier for level 1..3.
func (p *CharacterPlan) Tier(level int) PlanTier {
	switch level {
	case 1:
		return p.Lv1
	case 2:
		return p.Lv2
	case 3:
		return p.Lv3
	}
	return PlanTier{}
}

func (p *CharacterPlan) SetTier(level int, t PlanTier) {
	switch level {
	case 1:
		p.Lv1 = t
	case 2:
		p.Lv2 = t
	case 3:
		p.Lv3 = t
	}
}

// HighestSetLevel returns the highest level with stats, or 0.
func (p *CharacterPlan) HighestSetLevel() int {
	for lvl := MaxLevel; lvl >= 1; lvl-- {
		if p.Tier(lvl).IsSet() {
			return lvl
		}
	}
	return 0
}
