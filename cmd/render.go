package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/store"
)

const maxCellWidth = 60

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printInfo(w io.Writer, info media.VideoInfo) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Title:\t%s\n", info.Title)
	if info.Uploader != "" {
		fmt.Fprintf(tw, "Uploader:\t%s\n", info.Uploader)
	}
	platform := info.Platform
	if platform == "" {
		platform = media.ExtractDomain(info.URL)
	}
	if platform != "" {
		fmt.Fprintf(tw, "Platform:\t%s\n", platform)
	}
	fmt.Fprintf(tw, "Duration:\t%s\n", media.FormatDuration(info.Duration))
	fmt.Fprintf(tw, "Views:\t%s\n", media.FormatViews(info.ViewCount))
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(info.Formats) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "FORMAT\tEXT\tRESOLUTION\tSIZE\tNOTE")
	for _, f := range info.Formats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.FormatID, f.Ext, orDash(f.Resolution), media.FormatFileSize(f.Filesize), orDash(f.FormatNote))
	}
	return tw.Flush()
}

func printFormats(w io.Writer, catalog media.FormatCatalog) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "VALUE\tLABEL")
	for _, opt := range catalog.QualityOptions {
		fmt.Fprintf(tw, "%s\t%s\n", opt.Value, opt.Label)
	}
	return tw.Flush()
}

func printQueue(w io.Writer, snap media.QueueSnapshot) error {
	if len(snap.Items) == 0 {
		_, err := fmt.Fprintln(w, "queue is empty")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tQUALITY\tFORMAT\tURL\tACTIONS\tMESSAGE")
	for _, item := range snap.Items {
		msg := item.Message
		if item.Error != "" {
			msg = item.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Status, item.Progress, item.QualityLabel(), item.OutputFormat,
			truncate(item.URL), itemActions(item.Status), orDash(truncate(msg)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if st := snap.Status; st != nil {
		_, err := fmt.Fprintf(w, "total %d | pending %d | downloading %d | completed %d | failed %d | paused %d | cancelled %d\n",
			st.Total, st.Pending, st.Downloading, st.Completed, st.Failed, st.Paused, st.Cancelled)
		return err
	}
	return nil
}

// itemActions lists the batch subcommands that make sense for status.
func itemActions(status media.ItemStatus) string {
	if status == media.StatusCompleted {
		return "save"
	}
	if status.IsTerminal() {
		return "-"
	}
	var actions []string
	if status.CanCancel() {
		actions = append(actions, "cancel")
	}
	if status.CanPause() {
		actions = append(actions, "pause")
	}
	if status.CanResume() {
		actions = append(actions, "resume")
	}
	return orDash(strings.Join(actions, ","))
}

func printHistory(w io.Writer, rows []store.HistoryRecord) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no downloads recorded")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "WHEN\tITEM\tOUTCOME\tSIZE\tLOCATION\tNOTE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RecordedAt.Local().Format(time.DateTime), r.ItemID, r.Outcome,
			sizeOrDash(r.Bytes), orDash(r.Location), orDash(truncate(r.Note)))
	}
	return tw.Flush()
}

func truncate(s string) string {
	if len(s) <= maxCellWidth {
		return s
	}
	return s[:maxCellWidth-3] + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func sizeOrDash(n int64) string {
	if n <= 0 {
		return "-"
	}
	return media.FormatFileSize(n)
}
