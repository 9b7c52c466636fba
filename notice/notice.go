// Package notice renders the admission notice mailed with each certificate.
package notice

import (
	"strings"

	"github.com/pure-golang/exam-mailer/roster"
)

// Template is the static wording around the registrant's details.
type Template struct {
	Competition string
	Contact     string // who to ask
	Emails      string
	Phone       string
	Signature   string
}

// Default is the wording used by Compose.
var Default = Template{
	Competition: "MU Mental Math Competition 2025",
	Contact:     "[ชื่อคนให้ติดต่อ]",
	Emails:      "email@gmail.com, MoreEmail@gmail",
	Phone:       "000-000-0000",
	Signature: "[Firstname] [Surname], Student at Mahidol University\n" +
		"Department of [Department name], Mahidol University\n" +
		"Rama VI Road, Ratchathewi, Bangkok 10400, Thailand\n" +
		"Email: UniversityMail@mahidol.edu\n" +
		"Tel: +66x xxxx xxxx",
}

// Compose renders the notice for r with the Default template.
func Compose(r roster.Registrant) string {
	return Default.Compose(r)
}

// Compose renders the notice for r. Every registrant gets the same layout:
// greeting, download notice, exam details, reminder, contacts, signature.
func (t Template) Compose(r roster.Registrant) string {
	fullName := r.Name + " " + r.Surname

	var b strings.Builder

	b.WriteString("ถึง " + fullName + "\n")
	b.WriteString("ตามที่นักเรียนได้สมัครเข้าร่วมการแข่งขัน " + t.Competition + "\n\n")
	b.WriteString("นักเรียนสามารถดาวน์โหลดบัตรประจำตัวผู้เข้าสอบที่แนบมากับอีเมลนี้ได้เลยนะครับ \n\n")

	b.WriteString("รหัสประจำตัวของผู้เข้าสอบ: " + r.ExamID + "\n")
	b.WriteString("ชื่อผู้เข้าสอบ: " + fullName + "\n")
	b.WriteString("โรงเรียน " + r.School + "\n")
	b.WriteString("ห้องสอบ: " + r.Room + "\n")
	b.WriteString("เวลาสอบ: " + r.Time + "\n\n")

	b.WriteString("อย่าลืมนำบัตรประจำตัวผู้เข้าสอบและบัตรประชาชนมาเพื่อใช้ในการยืนยันตัวตน " +
		"และเช็คความถูกต้องของข้อมูลก่อนเข้าห้องสอบด้วยครับ\n\n")

	b.WriteString("อีเมลนี้ถูกสร้างขึ้นโดยอัตโนมัติ หากมีข้อสงสัยเพิ่มเติม สามารถสอบถาม" + t.Contact + " \n")
	b.WriteString("ได้ที่อีเมล: " + t.Emails + " \n")
	b.WriteString("และเบอร์โทร " + t.Phone + "\n")

	b.WriteString("\n -- \n\n")
	b.WriteString(t.Signature)

	return b.String()
}
