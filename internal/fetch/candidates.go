package fetch

import (
	"fmt"

	"GoImageBoardReader/internal/site"
)

// format は候補のレスポンスの形式です。
type format int

const (
	formatJSON format = iota
	formatHTML
)

func (f format) String() string {
	if f == formatHTML {
		return "html"
	}
	return "json"
}

// candidate は、1つの論理リクエストに対する取得先の候補です。
type candidate struct {
	url    string
	format format
}

func jsonCandidate(pattern string, args ...any) candidate {
	return candidate{url: fmt.Sprintf(pattern, args...), format: formatJSON}
}

func htmlCandidate(pattern string, args ...any) candidate {
	return candidate{url: fmt.Sprintf(pattern, args...), format: formatHTML}
}

// jsonURL と htmlURL は、組み立て済みの URL をそのまま候補にします。
func jsonURL(u string) candidate {
	return candidate{url: u, format: formatJSON}
}

func htmlURL(u string) candidate {
	return candidate{url: u, format: formatHTML}
}

// catalogCandidates は、板のスレッド一覧の取得先を優先順に返します。
// JSON を先に、より具体的なパスを先に並べ、HTML は最後です。
func catalogCandidates(s site.Site, board string) []candidate {
	api, base := s.API(), s.Base()
	switch s.Engine {
	case site.EngineFourChan, site.EngineLynxchan:
		return []candidate{
			jsonCandidate("%s/%s/catalog.json", api, board),
			jsonCandidate("%s/%s/1.json", api, board),
			htmlCandidate("%s/%s/", base, board),
		}
	case site.EngineSevenChan:
		return []candidate{
			jsonCandidate("%s/%s/catalog.json", api, board),
			jsonCandidate("%s/%s/0.json", api, board),
			htmlCandidate("%s/%s/", base, board),
		}
	default:
		// vichan 系 (8kun を含む) のインデックス JSON は 0 始まり
		return []candidate{
			jsonCandidate("%s/%s/catalog.json", api, board),
			jsonCandidate("%s/%s/0.json", api, board),
			htmlCandidate("%s/%s/index.html", base, board),
			htmlCandidate("%s/%s/", base, board),
		}
	}
}

// threadCandidates は、スレッド本体の取得先を優先順に返します。
func threadCandidates(s site.Site, board string, no int64) []candidate {
	api, base := s.API(), s.Base()
	switch s.Engine {
	case site.EngineFourChan:
		return []candidate{
			jsonCandidate("%s/%s/thread/%d.json", api, board, no),
			htmlCandidate("%s/%s/thread/%d", base, board, no),
		}
	default:
		return []candidate{
			jsonCandidate("%s/%s/res/%d.json", api, board, no),
			htmlCandidate("%s/%s/res/%d.html", base, board, no),
		}
	}
}

// boardListCandidates は、8kun と Lynxchan 以外のエンジンの板一覧の取得先です。
func boardListCandidates(s site.Site) []candidate {
	cands := []candidate{jsonCandidate("%s/boards.json", s.API())}
	if site.ProfileFor(s.Engine).HTMLBoardIndex {
		cands = append(cands, htmlCandidate("%s/boards.html", s.Base()))
	}
	return append(cands, htmlCandidate("%s/", s.Base()))
}

func eightKunSearchURL(s site.Site, page int) string {
	return fmt.Sprintf("%s/board-search.php?lang=&tags=&title=&sfw=0&page=%d", s.Base(), page)
}

func eightKunIndexURL(s site.Site) string {
	return s.Base() + "/boards.php"
}

func lynxBoardsURL(s site.Site, page int) string {
	if page <= 1 {
		return s.Base() + "/boards.js?json=1"
	}
	return fmt.Sprintf("%s/boards.js?json=1&page=%d", s.Base(), page)
}

func lynxBoardsHTMLURL(s site.Site) string {
	return s.Base() + "/boards.js"
}

func archiveURL(s site.Site, board string) string {
	return fmt.Sprintf("%s/%s/archive.json", s.API(), board)
}

// remediationURL は、チャレンジ解除のためにブラウザで開くページです。
// 板が特定できない場合はサイトのトップページです。
func remediationURL(s site.Site, board string) string {
	if board == "" {
		return s.Base() + "/"
	}
	return s.BoardURL(board)
}
