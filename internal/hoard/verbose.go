package hoard

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys double as the English text; the default catalog falls back
// to the key when a language has no translation.
const (
	msgNewValue      = "Create value '%s'"
	msgNewFolder     = "Create folder '%s'"
	msgDelete        = "Delete '%s'"
	msgEdit          = "Change value of '%s'"
	msgRename        = "Rename '%s' to '%s'"
	msgAlarm         = "Add reminder on '%s' due %s"
	msgAlarmRepeat   = "Add reminder on '%s' due %s, repeating every %d days"
	msgCancel        = "Cancel reminder on '%s'"
	msgConstrain     = "Constrain '%s' to %d characters from '%s'"
	msgUnconstrain   = "Remove constraints on '%s'"
	msgInsert        = "Insert '%s' under '%s'"
	msgMove          = "Move '%s' to '%s'"
	msgUnknownAction = "Unknown action on '%s'"
)

func init() {
	fr := language.French
	for key, text := range map[string]string{
		msgNewValue:      "Créer la valeur '%s'",
		msgNewFolder:     "Créer le dossier '%s'",
		msgDelete:        "Supprimer '%s'",
		msgEdit:          "Modifier la valeur de '%s'",
		msgRename:        "Renommer '%s' en '%s'",
		msgAlarm:         "Ajouter un rappel sur '%s' pour le %s",
		msgAlarmRepeat:   "Ajouter un rappel sur '%s' pour le %s, répété tous les %d jours",
		msgCancel:        "Annuler le rappel sur '%s'",
		msgConstrain:     "Limiter '%s' à %d caractères parmi '%s'",
		msgUnconstrain:   "Supprimer les contraintes sur '%s'",
		msgInsert:        "Insérer '%s' sous '%s'",
		msgMove:          "Déplacer '%s' vers '%s'",
		msgUnknownAction: "Action inconnue sur '%s'",
	} {
		_ = message.SetString(fr, key, text)
	}
}

// Verbose describes the action for a person reading in lang. Values are
// never included.
func (a Action) Verbose(lang language.Tag) string {
	p := message.NewPrinter(lang)
	path := a.Path.String()
	switch a.Type {
	case ActionNew:
		if a.Data == nil {
			return p.Sprintf(msgNewFolder, path)
		}
		return p.Sprintf(msgNewValue, path)
	case ActionDelete:
		return p.Sprintf(msgDelete, path)
	case ActionEdit:
		return p.Sprintf(msgEdit, path)
	case ActionRename:
		return p.Sprintf(msgRename, path, payloadString(a.Data))
	case ActionAlarm:
		al, _ := a.Data.(Alarm)
		due := FormatTime(al.Due)[:10]
		if al.Repeat > 0 {
			return p.Sprintf(msgAlarmRepeat, path, due, al.Repeat/Day)
		}
		return p.Sprintf(msgAlarm, path, due)
	case ActionCancel:
		return p.Sprintf(msgCancel, path)
	case ActionConstrain:
		c, ok := a.Data.(Constraints)
		if !ok {
			return p.Sprintf(msgUnconstrain, path)
		}
		return p.Sprintf(msgConstrain, path, c.Size, c.Chars)
	case ActionInsert:
		st, _ := a.Data.(Subtree)
		return p.Sprintf(msgInsert, st.Name, path)
	case ActionMove:
		return p.Sprintf(msgMove, path, payloadString(a.Data))
	}
	return p.Sprintf(msgUnknownAction, path)
}
