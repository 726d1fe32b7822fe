package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"librarydesk/pkg/domain"
	"librarydesk/services/desk/internal/catalog"
	"librarydesk/services/desk/internal/desk"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// renderBooks prints books. When snap knows the loans, the HOLDER column is read
// from open transactions; otherwise only the copies hint is shown.
func renderBooks(w io.Writer, books []domain.Book, snap catalog.Snapshot) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	tw := newTable(w)
	header := "ID\tTITLE\tAUTHOR\tSECTION\tSHELF\tCOPIES\tSTATUS"
	if snap.LoansKnown {
		header += "\tHOLDER"
	}
	fmt.Fprintln(tw, header)
	for _, b := range books {
		status := "available"
		if catalog.IssuedHint(b) {
			status = "issued"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s", b.ID, b.Title, b.Author, b.Section, b.ShelfNumber, b.Copies, status)
		if snap.LoansKnown {
			holder := "-"
			if tx, ok := snap.Holder(b.ID); ok {
				holder = tx.MemberID
			}
			fmt.Fprintf(tw, "\t%s", holder)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

func renderMembers(w io.Writer, members []domain.Member) {
	if len(members) == 0 {
		fmt.Fprintln(w, "No members found.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Email, m.Phone)
	}
	_ = tw.Flush()
}

func renderLoans(w io.Writer, loans []domain.Transaction) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No books on loan.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TXN\tBOOK\tTITLE\tMEMBER\tISSUED\tDUE")
	for _, tx := range loans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.BookID, tx.BookTitle, tx.MemberID,
			tx.IssueDate.Format("2006-01-02"), tx.DueDate.Format("2006-01-02"))
	}
	_ = tw.Flush()
}

func renderNotice(w io.Writer, n desk.Notice) {
	switch n.Level {
	case desk.NoticeNone:
	case desk.NoticeError:
		fmt.Fprintf(w, "Error: %s\n", n.Text)
	default:
		fmt.Fprintln(w, n.Text)
	}
}
