package history

import (
	"bytes"
	"encoding/json"
)

// shard - JSON-массив записей, готовый к записи в один ключ
type shard struct {
	body  string
	count int
}

// pack жадно складывает записи по порядку в шарды, пока размер шарда
// после шифрования (storedLen) не превышает target. Запись больше target
// получает отдельный шард.
func pack(items []json.RawMessage, target int, storedLen func(int) int) []shard {
	var (
		shards []shard
		buf    bytes.Buffer
		count  int
	)

	flush := func() {
		buf.WriteByte(']')
		shards = append(shards, shard{body: buf.String(), count: count})
		buf.Reset()
		count = 0
	}

	for _, item := range items {
		// текущий буфер + запятая + запись + закрывающая скобка
		if count > 0 && storedLen(buf.Len()+len(item)+2) > target {
			flush()
		}
		if count == 0 {
			buf.WriteByte('[')
		} else {
			buf.WriteByte(',')
		}
		buf.Write(item)
		count++
	}
	if count > 0 {
		flush()
	}
	return shards
}
