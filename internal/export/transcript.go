/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"gonovel/internal/domain"
)

// Transcript is everything printed for one finished (or abandoned) mission.
// Comments are in display order; replies follow their parent.
type Transcript struct {
	MissionTitle   string
	ArticleTitle   string
	ArticleContent string
	Comments       []domain.Comment
	Likes          int
	Dislikes       int
	Opinion        domain.Opinion
	Threshold      int
	// Success is nil while the mission is still running.
	Success  *bool
	Feedback string
}

// TranscriptOptions controls PDF output. Units are points.
//
// The built-in Helvetica covers Latin-1 only; characters outside it are
// replaced. Set FontPath to a UTF-8 TTF (for example a Noto Sans CJK
// subset) to print Korean text.
type TranscriptOptions struct {
	FontPath string
	Author   string
	// Now stamps the footer; defaults to time.Now.
	Now func() time.Time
}

const (
	pageMargin  = 48.0
	replyIndent = 24.0
	lineHeight  = 14.0
	barHeight   = 10.0
)

type writer struct {
	pdf  *gofpdf.Fpdf
	font string
	tr   func(string) string
}

func (w *writer) setFont(style string, size float64) {
	w.pdf.SetFont(w.font, style, size)
}

func (w *writer) text(x, width float64, s string) {
	w.pdf.SetX(x)
	w.pdf.MultiCell(width, lineHeight, w.tr(s), "", "L", false)
}

// WriteTranscriptPDF renders t as an A4 PDF into out.
func WriteTranscriptPDF(out io.Writer, t Transcript, opt TranscriptOptions) error {
	if out == nil {
		return errors.New("nil writer")
	}
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	w := &writer{pdf: pdf, font: "Helvetica", tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if opt.FontPath != "" {
		if _, err := os.Stat(opt.FontPath); err != nil {
			return fmt.Errorf("transcript font: %w", err)
		}
		pdf.AddUTF8Font("body", "", opt.FontPath)
		pdf.AddUTF8Font("body", "B", opt.FontPath)
		w.font = "body"
		w.tr = func(s string) string { return s }
	}
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}
	title := t.MissionTitle
	if title == "" {
		title = t.ArticleTitle
	}
	pdf.SetTitle(title, true)
	if opt.Author != "" {
		pdf.SetAuthor(opt.Author, true)
	}
	stamp := now().Format("2006-01-02 15:04")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin + 12)
		w.setFont("", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  %d", stamp, pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	body := pageW - 2*pageMargin

	w.setFont("B", 16)
	w.text(pageMargin, body, title)
	pdf.Ln(4)
	if t.MissionTitle != "" && t.ArticleTitle != "" {
		w.setFont("B", 12)
		w.text(pageMargin, body, t.ArticleTitle)
	}
	if strings.TrimSpace(t.ArticleContent) != "" {
		w.setFont("", 10)
		w.text(pageMargin, body, t.ArticleContent)
	}
	pdf.Ln(8)

	w.setFont("", 10)
	w.text(pageMargin, body, fmt.Sprintf("Likes %d  Dislikes %d  Opinion %d/%d", t.Likes, t.Dislikes, t.Opinion.Positive, t.Opinion.Negative))
	opinionBar(pdf, pageMargin, pdf.GetY()+2, body, t.Opinion, t.Threshold)
	pdf.Ln(barHeight + 10)

	w.setFont("B", 12)
	w.text(pageMargin, body, fmt.Sprintf("Comments (%d)", len(t.Comments)))
	pdf.Ln(2)
	for _, c := range t.Comments {
		x, width := pageMargin, body
		if c.IsReply {
			x, width = pageMargin+replyIndent, body-replyIndent
		}
		head := fmt.Sprintf("%s(%s)", c.Nickname, c.DisplayIP())
		if c.IsReply {
			head = "-> " + head
		}
		if c.Likes > 0 {
			head += fmt.Sprintf("  +%d", c.Likes)
		}
		style := ""
		if c.IsPlayer {
			style = "B"
		}
		w.setFont(style, 9)
		w.text(x, width, head)
		w.setFont("", 10)
		w.text(x, width, c.Content)
		pdf.Ln(4)
	}

	if t.Success != nil {
		pdf.Ln(6)
		w.setFont("B", 12)
		result := "Goal missed"
		if *t.Success {
			result = "Goal reached"
		}
		w.text(pageMargin, body, fmt.Sprintf("%s (%d%% of %d%% needed)", result, t.Opinion.Positive, t.Threshold))
	}
	if strings.TrimSpace(t.Feedback) != "" {
		pdf.Ln(4)
		w.setFont("", 10)
		w.text(pageMargin, body, t.Feedback)
	}

	if err := pdf.Output(out); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// opinionBar draws the positive share in blue and the rest in red, with a
// tick at the threshold.
func opinionBar(pdf *gofpdf.Fpdf, x, y, width float64, o domain.Opinion, threshold int) {
	pos := width * float64(clampPct(o.Positive)) / 100
	pdf.SetFillColor(66, 103, 178)
	if pos > 0 {
		pdf.Rect(x, y, pos, barHeight, "F")
	}
	pdf.SetFillColor(204, 63, 63)
	if pos < width {
		pdf.Rect(x+pos, y, width-pos, barHeight, "F")
	}
	if threshold > 0 && threshold <= 100 {
		tx := x + width*float64(threshold)/100
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(1)
		pdf.Line(tx, y-2, tx, y+barHeight+2)
	}
}

func clampPct(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// ExportTranscriptPDF writes the transcript to path, creating its directory.
func ExportTranscriptPDF(path string, t Transcript, opt TranscriptOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteTranscriptPDF(f, t, opt)
}
