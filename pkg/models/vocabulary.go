package models

// VocabularyItem is one German term with its translations and learning aids.
// Items are read-mostly reference data: the engine never mutates them, edits
// happen out-of-band in the spreadsheet.
type VocabularyItem struct {
	Key         string   `json:"key"`         // German term, unique within the vocabulary
	Translation string   `json:"translation"` // translation the learner is quizzed on
	English     string   `json:"english"`     // optional English gloss
	Example     string   `json:"example"`     // optional example sentence
	Mnemonic    string   `json:"mnemonic"`    // optional memory aid
	Tags        []string `json:"tags"`
}
