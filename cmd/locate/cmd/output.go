package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeLocations(w io.Writer, locations []types.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLACE\tPOPULATION\tPOPULAR")
	for _, loc := range locations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", loc.ID, loc.DisplayName(), population(loc), popular(loc))
	}
	return tw.Flush()
}

func writeCountries(w io.Writer, countries []types.Country) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME")
	for _, c := range countries {
		fmt.Fprintf(tw, "%s\t%s\n", c.Code, c.Name)
	}
	return tw.Flush()
}

func writeNearby(w io.Writer, from types.Coordinates, locations []types.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLACE\tDISTANCE")
	for _, loc := range locations {
		dist := "-"
		if loc.Coordinates != nil {
			dist = fmt.Sprintf("%.1f km", types.DistanceKm(from, *loc.Coordinates))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", loc.ID, loc.DisplayName(), dist)
	}
	return tw.Flush()
}

func population(loc types.Location) string {
	if loc.Population == nil {
		return "-"
	}
	return strconv.FormatInt(*loc.Population, 10)
}

func popular(loc types.Location) string {
	if loc.IsPopular {
		return "yes"
	}
	return ""
}
