package jobs

// Task describes a batch operation for operators.
type Task struct {
	Name        string `json:"name"`
	Endpoint    string `json:"endpoint"`
	Description string `json:"description"`
	Schedule    string `json:"schedule"`
}

var tasks = []Task{
	{
		Name:        UpdatePrices,
		Endpoint:    "POST /api/v1/positions/update-prices",
		Description: "Mark open positions to the current market price",
		Schedule:    "every 5 minutes (*/5 * * * *)",
	},
	{
		Name:        UpdateRankings,
		Endpoint:    "POST /api/v1/leagues/update-all-rankings",
		Description: "Re-rank members of every active league by total pnl",
		Schedule:    "every 15 minutes (*/15 * * * *)",
	},
	{
		Name:        CheckAchievements,
		Endpoint:    "POST /api/v1/achievements/check/{userID}",
		Description: "Award badges earned by a user's memberships",
		Schedule:    "after each trade",
	},
	{
		Name:        SettlePositions,
		Endpoint:    "POST /api/v1/positions/settle",
		Description: "Pay out open positions on resolved markets",
		Schedule:    "hourly (0 * * * *)",
	},
}

// Tasks returns the static batch operation catalog.
func Tasks() []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}
