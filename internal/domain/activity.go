package domain

import "time"

// GlobalOwnerID marks activities from the shared catalog that every user may track.
const GlobalOwnerID int64 = 0

// Activity is the catalog entry an interval is tracked against.
type Activity struct {
	ID        int64
	OwnerID   int64
	Name      string
	Color     string
	Icon      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VisibleTo reports whether the activity is global or owned by userID.
func (a Activity) VisibleTo(userID int64) bool {
	return a.OwnerID == GlobalOwnerID || a.OwnerID == userID
}

// DefaultActivities is the global catalog every store starts with.
func DefaultActivities() []Activity {
	seeded := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Activity{
		{ID: 1, OwnerID: GlobalOwnerID, Name: "Work", Color: "#2196F3", Icon: "briefcase", CreatedAt: seeded, UpdatedAt: seeded},
		{ID: 2, OwnerID: GlobalOwnerID, Name: "Study", Color: "#4CAF50", Icon: "book", CreatedAt: seeded, UpdatedAt: seeded},
		{ID: 3, OwnerID: GlobalOwnerID, Name: "Exercise", Color: "#FF5733", Icon: "dumbbell", CreatedAt: seeded, UpdatedAt: seeded},
	}
}
