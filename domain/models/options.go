package models

type InviteOptions struct {
	Label    string `json:"label"`
	Goal     string `json:"goal"`
	GoalCode string `json:"goal_code"`
	MultiUse bool   `json:"multi_use"`
}
