package sqlinline

const QListPresets = `--sql 46d54735-e9fe-4fe8-a472-d23523140d86
select id::text, name, prompts, created_at
from prompt_presets
where user_id = $1::uuid
order by created_at desc;
`

const QUpsertPreset = `--sql a5f656b2-cc26-4ff5-85ad-4bf917ca95d4
insert into prompt_presets (id, user_id, name, prompts, created_at)
values (gen_random_uuid(), $1::uuid, $2::text, $3::text[], now())
on conflict (user_id, name) do update set
    prompts = excluded.prompts
returning id::text, created_at;
`

const QDeletePreset = `--sql cc37d4f9-d7d0-48fc-b510-a1edb260accb
delete from prompt_presets
where id = $1::uuid
  and user_id = $2::uuid;
`
