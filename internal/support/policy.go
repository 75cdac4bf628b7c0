package support

import (
	"sort"
	"time"
)

// IsUnread reports whether the admin still has to look at the ticket. An
// explicit adminRead flag wins; without one, only terminal tickets are read.
func IsUnread(t Ticket) bool {
	if t.AdminRead != nil {
		return !*t.AdminRead
	}
	return t.Status != StatusClosed && t.Status != StatusResolved
}

// NeedsAdminRead reports whether opening the ticket should record a read receipt.
func NeedsAdminRead(t Ticket) bool {
	return t.LastResponseBy == ByUser && (t.AdminRead == nil || !*t.AdminRead)
}

func UnreadCount(tickets []Ticket) int {
	n := 0
	for _, t := range tickets {
		if IsUnread(t) {
			n++
		}
	}
	return n
}

type StatusCounts struct {
	All        int `json:"all"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
}

func CountByStatus(tickets []Ticket) StatusCounts {
	counts := StatusCounts{All: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case StatusOpen:
			counts.Open++
		case StatusInProgress:
			counts.InProgress++
		case StatusResolved:
			counts.Resolved++
		case StatusClosed:
			counts.Closed++
		}
	}
	return counts
}

// FilterByStatus keeps tickets with the given status; "" and "all" keep everything.
func FilterByStatus(tickets []Ticket, filter string) []Ticket {
	if filter == "" || filter == "all" {
		return tickets
	}
	out := make([]Ticket, 0, len(tickets))
	for _, t := range tickets {
		if string(t.Status) == filter {
			out = append(out, t)
		}
	}
	return out
}

var epoch = time.Unix(0, 0).UTC()

func sortKey(t Ticket) time.Time {
	if t.CreatedAt.IsZero() {
		return epoch
	}
	return t.CreatedAt
}

// NewestFirst orders tickets by creation time, newest first. Tickets without
// a creation time sort as the epoch.
func NewestFirst(a, b Ticket) bool {
	ka, kb := sortKey(a), sortKey(b)
	if !ka.Equal(kb) {
		return ka.After(kb)
	}
	return a.ID < b.ID
}

func SortNewestFirst(tickets []Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool { return NewestFirst(tickets[i], tickets[j]) })
}
