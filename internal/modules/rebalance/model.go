// README: Rebalancing routes from low-demand to high-demand wards.
package rebalance

import "yatri/internal/modules/demand"

type Route struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Path        []string `json:"path"`
	Hops        int      `json:"hops"`
}

type Plan struct {
	Classification demand.Classification `json:"classification"`
	Routes         []Route               `json:"routes"`
	// Unreachable lists low-demand wards with no path to any high-demand ward.
	Unreachable []string `json:"unreachable"`
}
