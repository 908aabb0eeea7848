package model

// ShiftRequest represents a manual shift submission.
type ShiftRequest struct {
	LevelID   string `json:"levelId"`
	UserID    string `json:"userId"`
	LagAbuse  int    `json:"lagAbuse"`
	Shifts    int    `json:"shifts"`
	Date      string `json:"date"`
	VideoLink string `json:"videoLink"`
	Password  string `json:"password"`
}
