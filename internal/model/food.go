package model

// Protein is the dish's main protein.
type Protein string

const (
	ProteinNone       Protein = "none"
	ProteinBeef       Protein = "beef"
	ProteinLamb       Protein = "lamb"
	ProteinPork       Protein = "pork"
	ProteinPoultry    Protein = "poultry"
	ProteinFish       Protein = "fish"
	ProteinVegetarian Protein = "vegetarian"
)

// Sauce is the dominant sauce style.
type Sauce string

const (
	SauceNone   Sauce = "none"
	SauceTomato Sauce = "tomato"
	SauceCream  Sauce = "cream"
	SauceBBQ    Sauce = "bbq"
	SauceRich   Sauce = "rich"
)

// Level is a coarse low/med/high intensity scale.
type Level string

const (
	LevelLow  Level = "low"
	LevelMed  Level = "med"
	LevelHigh Level = "high"
)

// FoodProfile describes a dish for pairing. Unset fields are neutral: they
// never penalize a wine, they just contribute nothing.
type FoodProfile struct {
	Protein    Protein `json:"protein,omitempty"`
	Sauce      Sauce   `json:"sauce,omitempty"`
	SpiceLevel Level   `json:"spice_level,omitempty"`
	SmokeLevel Level   `json:"smoke_level,omitempty"`
}
