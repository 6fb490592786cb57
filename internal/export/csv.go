// Package export renders organizer spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"ms-fest/internal/models"
	"ms-fest/internal/utils"
)

var (
	registrationHeader = []string{"Name", "Email", "Registration Date", "Status", "Attendance"}
	attendanceHeader   = []string{"Name", "Email", "Ticket ID", "Attendance", "Attended At"}
)

// Registrations writes one row per registration. Participant must be loaded.
func Registrations(w io.Writer, regs []models.Registration) error {
	rows := make([][]string, 0, len(regs))
	for i := range regs {
		reg := &regs[i]
		rows = append(rows, []string{
			reg.Participant.FullName(),
			email(reg.Participant),
			utils.FormatTimeOrNA(reg.CreatedAt),
			string(reg.Status),
			utils.YesNo(reg.AttendanceMarked),
		})
	}
	return write(w, registrationHeader, rows)
}

// Attendance writes the check-in sheet of the eligible registrations.
func Attendance(w io.Writer, regs []models.Registration) error {
	rows := make([][]string, 0, len(regs))
	for i := range regs {
		reg := &regs[i]
		ticketID := reg.TicketID
		if ticketID == "" {
			ticketID = "N/A"
		}
		presence := "Absent"
		if reg.AttendanceMarked {
			presence = "Present"
		}
		rows = append(rows, []string{
			reg.Participant.FullName(),
			email(reg.Participant),
			ticketID,
			presence,
			utils.FormatTimeOrNA(reg.AttendedAt),
		})
	}
	return write(w, attendanceHeader, rows)
}

func email(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.Email
}

func write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}
