package media

import (
	"sort"
	"strings"
)

// playerMatchThreshold is the minimum name similarity for a clip title to
// count as featuring a requested player.
const playerMatchThreshold = 0.55

// Ranking weights favor raw power numbers over launch angle.
const (
	exitVelocityWeight = 0.4
	distanceWeight     = 0.4
	launchAngleWeight  = 0.2
)

// rankClips orders clips by a weighted Statcast score, best first.
func rankClips(clips []HomeRun) {
	sort.SliceStable(clips, func(i, j int) bool {
		return clipScore(clips[i]) > clipScore(clips[j])
	})
}

func clipScore(hr HomeRun) float64 {
	return hr.ExitVelocity*exitVelocityWeight +
		hr.Distance*distanceWeight +
		hr.LaunchAngle*launchAngleWeight
}

// matchesPlayers reports whether the clip title mentions at least one of
// the requested players, using fuzzy matching against title words. An
// empty player list matches everything.
func matchesPlayers(title string, players []string) bool {
	if len(players) == 0 {
		return true
	}
	titleLower := strings.ToLower(title)
	titleWords := strings.Fields(titleLower)

	for _, player := range players {
		playerLower := strings.ToLower(strings.TrimSpace(player))
		if playerLower == "" {
			continue
		}
		if strings.Contains(titleLower, playerLower) {
			return true
		}
		for _, namePart := range strings.Fields(playerLower) {
			for _, word := range titleWords {
				if similarity(namePart, word) >= playerMatchThreshold {
					return true
				}
			}
		}
	}
	return false
}

// similarity is a bigram Dice coefficient in [0,1]. It tolerates the
// spelling variance in user-provided player names without pulling in a
// full fuzzy-matching dependency.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}

	bigrams := make(map[string]int)
	for i := 0; i < len(a)-1; i++ {
		bigrams[a[i:i+2]]++
	}
	matches := 0
	for i := 0; i < len(b)-1; i++ {
		if bigrams[b[i:i+2]] > 0 {
			bigrams[b[i:i+2]]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(len(a)+len(b)-2)
}
