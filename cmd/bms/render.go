package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/coordinator"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func renderRequests(w io.Writer, reqs []blood.BloodRequest) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "No requests.")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tGROUP\tQTY\tADDRESS\tSTATUS\tCREATED")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.BloodGroup, r.Quantity, r.Address, r.Status, stamp(r.CreatedAt))
	}
	_ = tw.Flush()
}

func renderDonorRows(w io.Writer, rows []coordinator.EligibleRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No pending requests.")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tGROUP\tQTY\tADDRESS\tREQUESTED BY\tACTION")
	for _, row := range rows {
		r := row.Request
		action := "offer"
		switch {
		case row.Offered:
			action = "offered"
		case !row.Compatible:
			action = "incompatible"
		case !row.Actionable:
			action = "busy"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.BloodGroup, r.Quantity, r.Address, r.RequestedBy.FullName(), action)
	}
	_ = tw.Flush()
}

func renderOffers(w io.Writer, offers []blood.Offer) {
	if len(offers) == 0 {
		fmt.Fprintln(w, "No offers.")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "OFFER\tREQUEST\tGROUP\tADDRESS\tREQUEST STATUS\tOFFER STATUS\tOFFERED")
	for _, o := range offers {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Request.ID, o.Request.BloodGroup, o.Request.Address, o.Request.Status, o.Status, stamp(o.CreatedAt))
	}
	_ = tw.Flush()
}

func renderSnapshot(w io.Writer, snap blood.InventorySnapshot) {
	fmt.Fprintf(w, "Donors: %d\nRequests: %d\n\n", snap.DonorCount, snap.RequestCount)
	tw := table(w)
	fmt.Fprintln(tw, "GROUP\tUNITS")
	for _, g := range blood.BloodGroups {
		fmt.Fprintf(tw, "%s\t%d\n", g, snap.AvailabilityByBloodGroup[g])
	}
	_ = tw.Flush()
}

func renderProfiles(w io.Writer, profiles []blood.Profile) {
	if len(profiles) == 0 {
		fmt.Fprintln(w, "No donors.")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tUSERNAME\tGROUP\tPHONE\tAVAILABLE")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n", p.ID, p.User.FullName(), p.User.Username, p.BloodGroup, p.Phone, p.Availability)
	}
	_ = tw.Flush()
}
