package decode

import (
	"encoding/json"
	"strconv"
	"strings"

	"GoImageBoardReader/internal/media"
	"GoImageBoardReader/internal/model"
)

// mediaKeyOf は、tim を整数・文字列のどちらでも受け取り、キー文字列を返します。
// tim が無い場合はファイル名の語幹を使います。
func mediaKeyOf(obj map[string]any) string {
	switch v := obj["tim"].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := v.Float64(); err == nil {
			return strconv.FormatInt(int64(f), 10)
		}
		return v.String()
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return strings.TrimSpace(stringField(obj, "filename"))
}

// classicMedia は、no/tim/ext 形式のオブジェクトから添付ファイル参照を取り出します。
// extra_files があれば続けて追加します。
func classicMedia(obj map[string]any) []model.MediaRef {
	var refs []model.MediaRef
	if ref, ok := classicMediaRef(obj); ok {
		refs = append(refs, ref)
	}
	if extras, ok := asArray(obj["extra_files"]); ok {
		for _, e := range extras {
			if eo, ok := asObject(e); ok {
				if ref, ok := classicMediaRef(eo); ok {
					refs = append(refs, ref)
				}
			}
		}
	}
	return refs
}

func classicMediaRef(obj map[string]any) (model.MediaRef, bool) {
	key := mediaKeyOf(obj)
	ext := media.NormalizeExtension(stringField(obj, "ext"))
	if key == "" || ext == "" {
		return model.MediaRef{}, false
	}
	ref := model.MediaRef{
		Key:       key,
		Extension: ext,
		Filename:  stringField(obj, "filename"),
		Spoiler:   boolField(obj, "spoiler"),
		Mime:      stringField(obj, "mime"),
	}
	if fpath, ok := intField(obj, "fpath"); ok {
		v := int(fpath)
		ref.FPath = &v
	}
	return ref, true
}

// lynxMedia は、Lynxchan の files 配列 (または catalog の thumb) から添付ファイル参照を取り出します。
func lynxMedia(obj map[string]any) []model.MediaRef {
	var refs []model.MediaRef
	if files, ok := asArray(obj["files"]); ok {
		for _, f := range files {
			fo, ok := asObject(f)
			if !ok {
				continue
			}
			p := stringField(fo, "path")
			thumb := stringField(fo, "thumb")
			if p == "" && thumb == "" {
				continue
			}
			key, ext := media.KeyFromPath(p)
			refs = append(refs, model.MediaRef{
				Key:       key,
				Extension: ext,
				Mime:      stringField(fo, "mime"),
				Filename:  stringField(fo, "originalName"),
				Path:      p,
				ThumbPath: thumb,
			})
		}
	}
	if len(refs) == 0 {
		if thumb := stringField(obj, "thumb"); thumb != "" {
			key, ext := media.KeyFromPath(thumb)
			refs = append(refs, model.MediaRef{Key: key, Extension: ext, ThumbPath: thumb})
		}
	}
	return refs
}

// lynxFileCount は、files 配列の要素数を返します。
func lynxFileCount(obj map[string]any) int {
	files, _ := asArray(obj["files"])
	return len(files)
}
