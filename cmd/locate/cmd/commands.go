package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

// countryFlag resolves --country: unset means the default country, "all"
// means every country.
func (a *app) countryFlag(cmd *cobra.Command, value string) string {
	if !cmd.Flags().Changed("country") {
		return a.defaultCountry
	}
	if strings.EqualFold(value, "all") {
		return ""
	}
	return value
}

func (a *app) searchCmd() *cobra.Command {
	var (
		country     string
		limit       int
		coordinates bool
	)
	c := &cobra.Command{
		Use:   "search <query>",
		Short: "Search places by partial name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := a.service.Search(cmd.Context(), types.SearchRequest{
				Query:              strings.Join(args, " "),
				Country:            a.countryFlag(cmd, country),
				Limit:              limit,
				IncludeCoordinates: coordinates,
			})
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			if err := writeLocations(cmd.OutOrStdout(), result.Locations); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d of %d shown\n", len(result.Locations), result.Total)
			return err
		},
	}
	c.Flags().StringVarP(&country, "country", "c", "", `country name or code, "all" for every country`)
	c.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	c.Flags().BoolVar(&coordinates, "coordinates", false, "include coordinates")
	return c
}

func (a *app) popularCmd() *cobra.Command {
	var (
		country string
		limit   int
	)
	c := &cobra.Command{
		Use:   "popular",
		Short: "List popular cities of a country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locations := a.service.GetPopularCities(cmd.Context(), a.countryFlag(cmd, country), limit)
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), locations)
			}
			return writeLocations(cmd.OutOrStdout(), locations)
		},
	}
	c.Flags().StringVarP(&country, "country", "c", "", `country name or code, "all" for every country`)
	c.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	return c
}

func (a *app) countriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List known countries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			countries := a.service.GetCountries(cmd.Context())
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), countries)
			}
			return writeCountries(cmd.OutOrStdout(), countries)
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Look up a location by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := a.service.GetLocationByID(cmd.Context(), args[0])
			if loc == nil {
				return fmt.Errorf("location %q not found", args[0])
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), loc)
			}
			return writeLocations(cmd.OutOrStdout(), []types.Location{*loc})
		},
	}
}

func (a *app) nearbyCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "nearby <lat> <lng>",
		Short: "List known places closest to a point",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q", args[0])
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q", args[1])
			}
			point := types.Coordinates{Lat: lat, Lng: lng}
			locations, err := a.service.NearbyCities(cmd.Context(), point, limit)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), locations)
			}
			return writeNearby(cmd.OutOrStdout(), point, locations)
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 5, "maximum results")
	return c
}
