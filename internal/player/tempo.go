package player

import "sort"

// prepareMidi builds the tempo map and precomputes per-tempo-change
// cumulative timer positions plus the song length. Format 2 files get
// their tracks laid out sequentially.
func (p *Player) prepareMidi() {
	p.tempoList = p.tempoList[:0]
	var tickBase, maxTicks uint32
	for _, trk := range p.cMidi.Tracks {
		for i := range trk.Events {
			evt := &trk.Events[i]
			evt.Tick += tickBase // for Format 2 files, apply track offset

			if evt.Type == 0xFF && evt.ValA == 0x51 {
				p.tempoList = append(p.tempoList, tempoChg{
					tick:  evt.Tick,
					tempo: evt.TempoMicros(),
				})
			}
		}
		if p.cMidi.Format == 2 {
			maxTicks = tickBase + trk.TickCount
			tickBase = maxTicks
		} else if maxTicks < trk.TickCount {
			maxTicks = trk.TickCount
		}
	}
	sort.SliceStable(p.tempoList, func(a, b int) bool {
		return p.tempoList[a].tick < p.tempoList[b].tick
	})
	if len(p.tempoList) == 0 || p.tempoList[0].tick > 0 {
		// add an initial tempo when none is set at tick 0
		p.tempoList = append([]tempoChg{{tick: 0, tempo: 500000}}, p.tempoList...)
	}

	// calculate the time position of tempo events and the song length
	prev := &p.tempoList[0]
	for i := 1; i < len(p.tempoList); i++ {
		tc := &p.tempoList[i]
		tickDiff := tc.tick - prev.tick
		p.midiTempo = prev.tempo
		p.refreshTickTime()
		tc.tmrTick = prev.tmrTick + uint64(tickDiff)*p.curTickTime
		prev = tc
	}
	p.midiTempo = prev.tempo
	p.refreshTickTime()
	p.songLength = prev.tmrTick + uint64(maxTicks-prev.tick)*p.curTickTime
}

// saveLoopState snapshots the current track cursors. The track carrying
// the loop marker skips past it so the loop doesn't retrigger instantly.
func (p *Player) saveLoopState(loopMarkTrk *trackState) {
	p.loopPt.tick = p.nextEvtTick
	p.loopPt.trkEvtPos = make([]int, len(p.trkStates))
	for i := range p.trkStates {
		p.loopPt.trkEvtPos[i] = p.trkStates[i].pos
		if &p.trkStates[i] == loopMarkTrk {
			p.loopPt.trkEvtPos[i]++
		}
	}
	p.loopPt.used = true
}

// restoreLoopState rewinds all track cursors to the loop point, stopping
// running notes first to avoid hanging them.
func (p *Player) restoreLoopState() {
	if !p.loopPt.used {
		return
	}
	p.allNotesStop()
	p.nextEvtTick = p.loopPt.tick
	for i := range p.loopPt.trkEvtPos {
		p.trkStates[i].pos = p.loopPt.trkEvtPos[i]
	}
}
