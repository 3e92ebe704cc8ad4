package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinDocumentLength is the shortest document text, in runes after
// trimming, that is sent to the generator as is.
const DefaultMinDocumentLength = 50

// PlaceholderDocument is a known-good academic timetable used in place of
// document text that is missing or too short to extract from.
const PlaceholderDocument = `Academic Schedule - Semester Genap 2024/2025

KELAS III RPLK (Rekayasa Perangkat Lunak dan Gim):
Senin 08:00 - 10:00 Pemrograman Web Lanjutan Mr. Budi Ruang Lab 301
Selasa 10:30 - 12:30 Database Management System Ms. Sari Ruang Lab 302
Rabu 14:00 - 16:00 Mobile App Development Mr. Andi Ruang Lab 303
Kamis 09:00 - 11:00 Software Engineering Dr. Rini Ruang 304
Jumat 13:00 - 15:00 Game Development Mr. Doni Ruang Lab 305

KELAS III TKJ (Teknik Komputer dan Jaringan):
Senin 10:00 - 12:00 Network Security Mr. Agus Ruang Lab 201
Selasa 08:00 - 10:00 Server Administration Ms. Dewi Ruang Lab 202
Rabu 13:00 - 15:00 Wireless Technology Dr. Hadi Ruang Lab 203

KELAS III MM (Multimedia):
Senin 13:00 - 15:00 Video Editing Ms. Eka Ruang Studio A
Selasa 14:00 - 16:00 3D Animation Mr. Fajar Ruang Studio B
`

// PrepareDocument returns text when it is long enough, otherwise the
// placeholder document. The boolean reports whether the placeholder was used.
// A minLen of zero or less selects DefaultMinDocumentLength.
func PrepareDocument(text string, minLen int) (string, bool) {
	if minLen <= 0 {
		minLen = DefaultMinDocumentLength
	}
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minLen {
		return PlaceholderDocument, true
	}
	return trimmed, false
}
