package validate

import (
	"strings"

	"github.com/tatianab/devil-deal/internal/models"
)

func (w *walker) offerBundle(doc any) {
	root, ok := w.object(doc, "$")
	if !ok {
		return
	}
	if devil, ok := w.obj(root, "devil", "$"); ok {
		w.str(devil, "tier", "$.devil")
		w.str(devil, "name", "$.devil")
	}
	w.str(root, "display_text", "$")

	if offer, ok := w.obj(root, "offer", "$"); ok {
		w.str(offer, "summary", "$.offer")
		w.str(offer, "full_text", "$.offer")
		w.num(offer, "min_accept_soul_cost", "$.offer")
		w.deltas(offer, "deltas_on_accept", "$.offer")
		w.list(offer, "abilities_granted", "$.offer")
		w.list(offer, "curses_granted", "$.offer")
	}

	w.textIndex(root)

	fatalRequired := false
	if probe, ok := w.obj(root, "deadly_probe", "$"); ok {
		fatalRequired, _ = w.boolean(probe, "present", "$.deadly_probe")
		w.num(probe, "spawn_chance", "$.deadly_probe")
		w.str(probe, "warning_text", "$.deadly_probe")
	}

	w.loopholes(root, fatalRequired)
}

func (w *walker) textIndex(root map[string]any) {
	idx, ok := w.obj(root, "text_index", "$")
	if !ok {
		return
	}
	paragraphs, ok := w.list(idx, "paragraphs", "$.text_index")
	if !ok {
		return
	}
	for i, p := range paragraphs {
		pPath := index("$.text_index.paragraphs", i)
		para, ok := w.object(p, pPath)
		if !ok {
			continue
		}
		w.num(para, "p", pPath)
		sentences, ok := w.list(para, "sentences", pPath)
		if !ok {
			continue
		}
		for j, s := range sentences {
			sPath := index(child(pPath, "sentences"), j)
			sentence, ok := w.object(s, sPath)
			if !ok {
				continue
			}
			w.num(sentence, "s", sPath)
			w.str(sentence, "text", sPath)
		}
	}
}

func (w *walker) loopholes(root map[string]any, fatalRequired bool) {
	const path = "$.loopholes"
	list, ok := w.list(root, "loopholes", "$")
	if !ok {
		return
	}
	if n := len(list); n < MinFlaws || n > MaxFlaws {
		w.fail(path, "length must be in [%d,%d] (got %d)", MinFlaws, MaxFlaws, n)
	}

	hasFatal := false
	seen := make(map[string]bool, len(list))
	for i, item := range list {
		lp := index(path, i)
		l, ok := w.object(item, lp)
		if !ok {
			continue
		}
		if id, ok := w.str(l, "id", lp); ok {
			if seen[id] {
				w.fail(child(lp, "id"), "duplicate id %q", id)
			}
			seen[id] = true
		}
		if ref, ok := w.obj(l, "quote_ref", lp); ok {
			w.num(ref, "p", child(lp, "quote_ref"))
			w.num(ref, "s", child(lp, "quote_ref"))
		}
		detect := w.stringList(l, "player_detect_keywords", lp)
		issue := w.stringList(l, "player_issue_keywords", lp)
		w.disjoint(detect, issue, child(lp, "player_issue_keywords"))
		w.str(l, "issue_explanation", lp)

		if trig, ok := w.obj(l, "trigger_condition", lp); ok {
			tp := child(lp, "trigger_condition")
			w.str(trig, "type", tp)
			if then, ok := w.obj(trig, "then", tp); ok {
				apply, ok := w.str(then, "apply", child(tp, "then"))
				switch {
				case !ok:
				case apply == models.ApplyFatal:
					hasFatal = true
				case apply != models.ApplyPenalty:
					w.fail(child(tp, "then.apply"), "must be one of %s, %s (got %q)", models.ApplyPenalty, models.ApplyFatal, apply)
				}
			}
		}

		w.deltas(l, "penalty_on_accept", lp)
		w.stringList(l, "defuse_actions", lp)
		w.num(l, "severity", lp)
	}

	if fatalRequired && !hasFatal {
		w.fail(path, "deadly_probe.present is true but no loophole applies %q", models.ApplyFatal)
	}
}

// disjoint reports issue keywords that also appear, case-insensitively,
// among the detect keywords.
func (w *walker) disjoint(detect, issue []string, path string) {
	set := make(map[string]bool, len(detect))
	for _, k := range detect {
		set[strings.ToLower(strings.TrimSpace(k))] = true
	}
	for i, k := range issue {
		if set[strings.ToLower(strings.TrimSpace(k))] {
			w.fail(index(path, i), "%q is also a detect keyword", k)
		}
	}
}

func (w *walker) negotiation(doc any) {
	root, ok := w.object(doc, "$")
	if !ok {
		return
	}
	w.str(root, "display_text", "$")

	if offer, ok := w.obj(root, "updated_offer", "$"); ok {
		w.str(offer, "summary", "$.updated_offer")
		w.str(offer, "full_text", "$.updated_offer")
		w.deltas(offer, "deltas_on_accept", "$.updated_offer")
	}

	if check, ok := w.obj(root, "loophole_check", "$"); ok {
		const cp = "$.loophole_check"
		switch check["matched_loophole_id"].(type) {
		case nil, string:
		default:
			w.fail(child(cp, "matched_loophole_id"), "must be a string or null")
		}
		w.boolean(check, "layer1_detected", cp)
		explained, explainedOK := w.boolean(check, "layer2_issue_explained", cp)
		w.boolean(check, "is_full_success", cp)

		if conf, ok := w.obj(check, "confidence", cp); ok {
			w.num(conf, "keyword_score", child(cp, "confidence"))
			w.num(conf, "semantic_score", child(cp, "confidence"))
			w.num(conf, "final_score", child(cp, "confidence"))
		}

		mode, modeOK := w.str(check, "devil_response_mode", cp)
		switch {
		case !modeOK:
		case !knownMode(mode):
			w.fail(child(cp, "devil_response_mode"), "must be one of %s (got %q)", strings.Join(responseModes, ", "), mode)
		case explainedOK && explained && !concedes(mode):
			w.fail(child(cp, "devil_response_mode"), "must be %q when layer2_issue_explained is true (got %q)", "concede", mode)
		}
		w.stringList(check, "devil_concession", cp)
	}

	if log, ok := w.list(root, "conversation_log_append", "$"); ok {
		for i, item := range log {
			ep := index("$.conversation_log_append", i)
			entry, ok := w.object(item, ep)
			if !ok {
				continue
			}
			w.str(entry, "role", ep)
			w.str(entry, "content", ep)
		}
	}
}

var responseModes = []string{"concede", "deflect", "deny"}

func knownMode(mode string) bool {
	for _, m := range responseModes {
		if strings.EqualFold(strings.TrimSpace(mode), m) {
			return true
		}
	}
	return false
}

func concedes(mode string) bool {
	return strings.EqualFold(strings.TrimSpace(mode), "concede")
}

func (w *walker) event(doc any) {
	root, ok := w.object(doc, "$")
	if !ok {
		return
	}
	w.str(root, "display_text", "$")

	ev, ok := w.obj(root, "event", "$")
	if !ok {
		return
	}
	w.str(ev, "node", "$.event")
	w.str(ev, "event_text", "$.event")
	choices, ok := w.list(ev, "choices", "$.event")
	if !ok {
		return
	}
	if len(choices) != 2 {
		w.fail("$.event.choices", "must contain exactly 2 choices (got %d)", len(choices))
	}
	for i, c := range choices {
		p := index("$.event.choices", i)
		choice, ok := w.object(c, p)
		if !ok {
			continue
		}
		w.str(choice, "id", p)
		w.str(choice, "choice_text", p)
		w.deltas(choice, "deltas", p)
	}
}
